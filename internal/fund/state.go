package fund

import (
	"encoding/json"
	"os"
	"path/filepath"

	"YieldVault/internal/model"
)

// LoadCheckpoint reads the last vault summary from a JSON file. Returns nil if
// the file doesn't exist.
func LoadCheckpoint(filePath string) (*model.Summary, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s model.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveCheckpoint writes the vault summary to a JSON file, replacing it
// atomically.
func SaveCheckpoint(filePath string, s *model.Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
