package bridge

import (
	"fmt"
	"strconv"
	"sync"
)

// LaunchStore holds the payload of the notification that brought the
// application up, until the application asks for it once.
type LaunchStore struct {
	mu      sync.Mutex
	payload map[string]string
}

// Store replaces the pending payload. Nested maps are flattened into the top
// level and nil values dropped; a payload that ends up empty clears the
// store.
func (s *LaunchStore) Store(data map[string]any) {
	flat := Flatten(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(flat) == 0 {
		s.payload = nil
		return
	}
	s.payload = flat
}

// StoreStrings is Store for payloads that are already flat.
func (s *LaunchStore) StoreStrings(data map[string]string) {
	m := make(map[string]any, len(data))
	for k, v := range data {
		m[k] = v
	}
	s.Store(m)
}

// Consume returns the pending payload, or nil, and clears it.
func (s *LaunchStore) Consume() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payload
	s.payload = nil
	return p
}

// Flatten merges nested maps into one string map. Keys of nested maps are
// used as they are, without a prefix.
func Flatten(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	flattenInto(out, data)
	return out
}

func flattenInto(out map[string]string, data map[string]any) {
	for k, v := range data {
		switch v := v.(type) {
		case nil:
		case map[string]any:
			flattenInto(out, v)
		case map[string]string:
			for nk, nv := range v {
				out[nk] = nv
			}
		case string:
			out[k] = v
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
}
