package docql

import (
	"context"
	"encoding/json"
	"sync"
)

type ctxKey int

const (
	metadataKey ctxKey = 0
)

// Metadata holds key value pairs associated with a go Context. Tags attached
// to a context are merged into every log line emitted while serving it.
type Metadata struct {
	tags sync.Map
}

// NewMetadata creates metadata with the given tags
func NewMetadata(tags map[string]any) *Metadata {
	m := &Metadata{}
	if tags != nil {
		m.SetAll(tags)
	}
	return m
}

// String returns a json string of the metadata
func (m *Metadata) String() string {
	bits, _ := m.MarshalJSON()
	return string(bits)
}

// MarshalJSON returns the metadata values as json bytes
func (m *Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// SetAll sets the key value fields on the metadata
func (m *Metadata) SetAll(data map[string]any) {
	for k, v := range data {
		m.tags.Store(k, v)
	}
}

// Set sets a key value pair on the metadata
func (m *Metadata) Set(key string, value any) {
	m.SetAll(map[string]any{key: value})
}

// Del deletes a key from the metadata
func (m *Metadata) Del(key string) {
	m.tags.Delete(key)
}

// Get gets a key from the metadata if it exists
func (m *Metadata) Get(key string) (any, bool) {
	return m.tags.Load(key)
}

// Exists returns true if the key exists in the metadata
func (m *Metadata) Exists(key string) bool {
	_, ok := m.tags.Load(key)
	return ok
}

// Map returns the metadata key values as a map
func (m *Metadata) Map() map[string]any {
	data := map[string]any{}
	m.tags.Range(func(key, value any) bool {
		data[key.(string)] = value
		return true
	})
	return data
}

// ToContext attaches the metadata to the given context
func (m *Metadata) ToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, metadataKey, m)
}

// GetMetadata returns the metadata attached to the context and whether it
// existed; a fresh empty Metadata is returned when it did not
func GetMetadata(ctx context.Context) (*Metadata, bool) {
	m, ok := ctx.Value(metadataKey).(*Metadata)
	if ok {
		return m, true
	}
	return NewMetadata(map[string]any{}), false
}

// logTags merges the contexts metadata into the given tags
func logTags(ctx context.Context, tags map[string]any) map[string]any {
	m, ok := GetMetadata(ctx)
	if !ok {
		return tags
	}
	out := m.Map()
	for k, v := range tags {
		out[k] = v
	}
	return out
}
