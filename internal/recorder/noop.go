package recorder

import "YieldVault/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordOperation(_ *OperationEvent) error { return nil }
func (n *NoopRecorder) RecordRequest(_ *RequestEvent) error     { return nil }
func (n *NoopRecorder) RecordSnapshot(_ *model.Summary) error   { return nil }
func (n *NoopRecorder) Close() error                            { return nil }
