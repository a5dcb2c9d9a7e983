// Package registry holds the vault's custody items under string keys.
//
// An item that is borrowed out leaves the registry entirely; the key stays
// reserved until the exact same item comes back.
package registry

import (
	"reflect"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"

	"YieldVault/internal/model"
)

// Item is anything the vault can hold in custody. Implementations must be
// pointers: identity is the pointer plus ID, not the contents.
type Item interface {
	ID() uuid.UUID
	Kind() string
}

type loan struct {
	item Item
	ptr  uintptr
}

// Registry is the AssetRegistry. It is not safe for concurrent use; callers
// serialise access through the vault.
type Registry struct {
	items    map[string]Item
	borrowed map[string]loan
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		items:    make(map[string]Item),
		borrowed: make(map[string]loan),
	}
}

func pointerOf(item Item) (uintptr, error) {
	if item == nil {
		return 0, errorsmod.Wrap(model.ErrInvalidArgument, "nil item")
	}
	v := reflect.ValueOf(item)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return 0, errorsmod.Wrapf(model.ErrInvalidArgument, "item %T must be a non-nil pointer", item)
	}
	return v.Pointer(), nil
}

// Put stores item under key.
func (r *Registry) Put(key string, item Item) error {
	if key == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "empty key")
	}
	if _, err := pointerOf(item); err != nil {
		return err
	}
	if _, ok := r.items[key]; ok {
		return errorsmod.Wrapf(model.ErrInvariant, "key %s already occupied", key)
	}
	if _, ok := r.borrowed[key]; ok {
		return errorsmod.Wrapf(model.ErrInvariant, "key %s is borrowed out", key)
	}
	r.items[key] = item
	return nil
}

// Take removes and returns the item under key.
func (r *Registry) Take(key string) (Item, error) {
	item, ok := r.items[key]
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "asset %s", key)
	}
	delete(r.items, key)
	return item, nil
}

// Contains reports whether key currently holds an item in custody.
func (r *Registry) Contains(key string) bool {
	_, ok := r.items[key]
	return ok
}

// Get returns the item under key without removing it.
func (r *Registry) Get(key string) (Item, bool) {
	item, ok := r.items[key]
	return item, ok
}

// BorrowOut removes the item under key and reserves the key for its return.
func (r *Registry) BorrowOut(key string) (Item, error) {
	item, ok := r.items[key]
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "asset %s", key)
	}
	ptr, err := pointerOf(item)
	if err != nil {
		return nil, err
	}
	delete(r.items, key)
	r.borrowed[key] = loan{item: item, ptr: ptr}
	return item, nil
}

// ReturnIn puts a borrowed item back. The item must be the very one that
// BorrowOut handed out for key.
func (r *Registry) ReturnIn(key string, item Item) error {
	if err := r.CheckReturn(key, item); err != nil {
		return err
	}
	delete(r.borrowed, key)
	r.items[key] = item
	return nil
}

// CheckReturn reports whether ReturnIn(key, item) would succeed.
func (r *Registry) CheckReturn(key string, item Item) error {
	out, ok := r.borrowed[key]
	if !ok {
		return errorsmod.Wrapf(model.ErrInvariant, "asset %s was not borrowed", key)
	}
	ptr, err := pointerOf(item)
	if err != nil {
		return err
	}
	if ptr != out.ptr || item.ID() != out.item.ID() {
		return errorsmod.Wrapf(model.ErrInvariant, "asset %s returned with a different item (%s, want %s)", key, item.ID(), out.item.ID())
	}
	return nil
}

// InFlight reports whether key is borrowed out.
func (r *Registry) InFlight(key string) bool {
	_, ok := r.borrowed[key]
	return ok
}

// Borrowed returns the item that was handed out for key.
func (r *Registry) Borrowed(key string) (Item, bool) {
	out, ok := r.borrowed[key]
	return out.item, ok
}

// Keys lists the keys in custody, sorted.
func (r *Registry) Keys() []string {
	return sortedKeys(r.items)
}

// BorrowedKeys lists the keys currently borrowed out, sorted.
func (r *Registry) BorrowedKeys() []string {
	return sortedKeys(r.borrowed)
}

// WriteOff forgets a borrowed item that is never coming back and frees its key.
func (r *Registry) WriteOff(key string) (Item, error) {
	out, ok := r.borrowed[key]
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "borrowed asset %s", key)
	}
	delete(r.borrowed, key)
	return out.item, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
