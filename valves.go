package pipelines

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/sentinel"
)

// ValveStore is the type-erased view of a Store used by pipelines and hosts.
type ValveStore interface {
	// Version returns the version of the current snapshot.
	Version() uint64
	// UpdateJSON merges a partial JSON object onto the current valves.
	UpdateJSON(data []byte) (uint64, error)
	// Values returns the current valves as a JSON-ready map.
	Values() map[string]any
	// Schema describes the valves struct for a host's settings form.
	Schema() map[string]any
}

// Snapshot is one immutable version of the valves and their derived headers.
type Snapshot[V any] struct {
	Version uint64
	Valves  V
	Headers map[string]http.Header // endpoint name -> request headers
}

// HeaderBuilder derives per-endpoint request headers from valves.
type HeaderBuilder[V any] func(valves V) map[string]http.Header

// Store holds the valves of a pipeline as a versioned snapshot.
// Readers always see a consistent snapshot; writers replace it wholesale.
//
// V must be a struct type with json tags.
type Store[V any] struct {
	current atomic.Pointer[Snapshot[V]]
	build   HeaderBuilder[V]
	mu      sync.Mutex // serializes writers
}

// NewStore creates a store at version 1.
func NewStore[V any](valves V, build HeaderBuilder[V]) *Store[V] {
	s := &Store[V]{build: build}
	s.current.Store(&Snapshot[V]{
		Version: 1,
		Valves:  valves,
		Headers: s.derive(valves),
	})
	return s
}

func (s *Store[V]) derive(valves V) map[string]http.Header {
	if s.build == nil {
		return map[string]http.Header{}
	}
	headers := s.build(valves)
	if headers == nil {
		headers = map[string]http.Header{}
	}
	return headers
}

// Load returns the current snapshot. It must not be modified.
func (s *Store[V]) Load() *Snapshot[V] {
	return s.current.Load()
}

// Current returns a copy of the current valves.
func (s *Store[V]) Current() V {
	return s.Load().Valves
}

// Version returns the version of the current snapshot.
func (s *Store[V]) Version() uint64 {
	return s.Load().Version
}

// Update replaces the valves, rebuilds every derived header and returns the
// new version.
func (s *Store[V]) Update(valves V) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swap(valves)
}

func (s *Store[V]) swap(valves V) uint64 {
	next := &Snapshot[V]{
		Version: s.Load().Version + 1,
		Valves:  valves,
		Headers: s.derive(valves),
	}
	s.current.Store(next)
	return next.Version
}

// UpdateJSON merges a partial JSON object onto a copy of the current valves
// and swaps the result in. An empty payload only rebuilds the headers.
func (s *Store[V]) UpdateJSON(data []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valves := s.Load().Valves
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &valves); err != nil {
			return s.Load().Version, fmt.Errorf("invalid valves update: %w", err)
		}
	}
	return s.swap(valves), nil
}

// Source returns a HeaderSource bound to one endpoint of this store.
// Every call reads the latest snapshot.
func (s *Store[V]) Source(endpoint string) HeaderSource {
	return storeSource[V]{store: s, endpoint: endpoint}
}

type storeSource[V any] struct {
	store    *Store[V]
	endpoint string
}

func (h storeSource[V]) Headers() http.Header {
	headers, ok := h.store.Load().Headers[h.endpoint]
	if !ok {
		return http.Header{}
	}
	return headers.Clone()
}

// Values returns the current valves as a JSON-ready map.
func (s *Store[V]) Values() map[string]any {
	values := map[string]any{}
	data, err := json.Marshal(s.Current())
	if err != nil {
		return values
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return map[string]any{}
	}
	return values
}

// Schema creates a JSON Schema object for V using sentinel.
func (*Store[V]) Schema() map[string]any {
	metadata := sentinel.Inspect[V]()

	properties := make(map[string]any)
	required := make([]string, 0)
	for _, field := range metadata.Fields {
		name := jsonFieldName(field)
		if name == "-" {
			continue // Skip fields with json:"-"
		}

		prop := map[string]any{
			"title": name,
			"type":  goTypeToJSONType(field.Type),
		}
		if desc, ok := field.Tags["desc"]; ok {
			prop["description"] = desc
		}
		properties[name] = prop

		if !hasOmitempty(field) {
			required = append(required, name)
		}
	}

	return map[string]any{
		"title":      "Valves",
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// jsonFieldName extracts the JSON field name from metadata.
func jsonFieldName(field sentinel.FieldMetadata) string {
	if jsonTag, ok := field.Tags["json"]; ok {
		// Handle "name,omitempty" format
		parts := strings.Split(jsonTag, ",")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
	}
	return field.Name
}

// hasOmitempty checks if the json tag contains omitempty.
func hasOmitempty(field sentinel.FieldMetadata) bool {
	if jsonTag, ok := field.Tags["json"]; ok {
		return strings.Contains(jsonTag, "omitempty")
	}
	return false
}

// goTypeToJSONType maps Go types to JSON Schema types.
func goTypeToJSONType(goType string) string {
	switch {
	case strings.HasPrefix(goType, "string"):
		return "string"
	case strings.HasPrefix(goType, "int"), strings.HasPrefix(goType, "uint"):
		return "integer"
	case strings.HasPrefix(goType, "float"):
		return "number"
	case strings.HasPrefix(goType, "bool"):
		return "boolean"
	case strings.HasPrefix(goType, "[]"):
		return "array"
	default:
		return "object"
	}
}
