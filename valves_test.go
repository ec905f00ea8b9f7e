package pipelines

import (
	"net/http"
	"sync"
	"testing"
)

type testValves struct {
	Key   string `json:"API_KEY" desc:"upstream key"`
	Limit int    `json:"LIMIT,omitempty"`
}

func testHeaders(v testValves) map[string]http.Header {
	return map[string]http.Header{
		"upstream": {"Authorization": {"Bearer " + v.Key}},
	}
}

func TestStore(t *testing.T) {
	t.Run("initial snapshot", func(t *testing.T) {
		s := NewStore(testValves{Key: "a"}, testHeaders)
		snap := s.Load()
		if snap.Version != 1 || snap.Valves.Key != "a" {
			t.Errorf("Unexpected snapshot %+v", snap)
		}
		if got := s.Source("upstream").Headers().Get("Authorization"); got != "Bearer a" {
			t.Errorf("Expected derived header, got %q", got)
		}
	})

	t.Run("update rebuilds headers", func(t *testing.T) {
		s := NewStore(testValves{Key: "a"}, testHeaders)
		source := s.Source("upstream")

		if v := s.Update(testValves{Key: "b"}); v != 2 {
			t.Errorf("Expected version 2, got %d", v)
		}
		if got := source.Headers().Get("Authorization"); got != "Bearer b" {
			t.Errorf("Expected rebuilt header, got %q", got)
		}
	})

	t.Run("partial json update", func(t *testing.T) {
		s := NewStore(testValves{Key: "a", Limit: 3}, testHeaders)
		v, err := s.UpdateJSON([]byte(`{"API_KEY":"b"}`))
		if err != nil {
			t.Fatalf("UpdateJSON failed: %v", err)
		}
		if v != 2 || s.Current().Key != "b" || s.Current().Limit != 3 {
			t.Errorf("Unexpected valves %+v at %d", s.Current(), v)
		}
	})

	t.Run("empty payload only bumps version", func(t *testing.T) {
		s := NewStore(testValves{Key: "a"}, testHeaders)
		v, err := s.UpdateJSON(nil)
		if err != nil || v != 2 || s.Current().Key != "a" {
			t.Errorf("Unexpected result %d %v %+v", v, err, s.Current())
		}
	})

	t.Run("invalid json keeps snapshot", func(t *testing.T) {
		s := NewStore(testValves{Key: "a"}, testHeaders)
		v, err := s.UpdateJSON([]byte(`{"API_KEY":`))
		if err == nil {
			t.Fatal("Expected error")
		}
		if v != 1 || s.Current().Key != "a" {
			t.Errorf("Snapshot changed on failed update: %d %+v", v, s.Current())
		}
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		s := NewStore(testValves{}, nil)
		if h := s.Source("missing").Headers(); len(h) != 0 {
			t.Errorf("Expected empty headers, got %v", h)
		}
	})

	t.Run("headers are copies", func(t *testing.T) {
		s := NewStore(testValves{Key: "a"}, testHeaders)
		h := s.Source("upstream").Headers()
		h.Set("Authorization", "tampered")
		if got := s.Source("upstream").Headers().Get("Authorization"); got != "Bearer a" {
			t.Errorf("Snapshot was mutated: %q", got)
		}
	})
}

func TestStoreConcurrentSnapshots(t *testing.T) {
	s := NewStore(testValves{Key: "0"}, testHeaders)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Update(testValves{Key: "x"})
		}()
		go func() {
			defer wg.Done()
			snap := s.Load()
			want := "Bearer " + snap.Valves.Key
			if got := snap.Headers["upstream"].Get("Authorization"); got != want {
				t.Errorf("Inconsistent snapshot: %q vs %q", got, want)
			}
		}()
	}
	wg.Wait()

	if s.Version() != 11 {
		t.Errorf("Expected version 11, got %d", s.Version())
	}
}

func TestStoreValuesAndSchema(t *testing.T) {
	s := NewStore(testValves{Key: "k", Limit: 2}, nil)

	values := s.Values()
	if values["API_KEY"] != "k" || values["LIMIT"] != float64(2) {
		t.Errorf("Unexpected values %v", values)
	}

	schema := s.Schema()
	if schema["type"] != "object" || schema["title"] != "Valves" {
		t.Errorf("Unexpected schema header %v", schema)
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("Expected properties map, got %T", schema["properties"])
	}
	if len(properties) != 2 {
		t.Errorf("Expected 2 properties, got %d", len(properties))
	}
}

func TestGoTypeToJSONType(t *testing.T) {
	tests := map[string]string{
		"string":         "string",
		"int":            "integer",
		"uint64":         "integer",
		"float64":        "number",
		"bool":           "boolean",
		"[]string":       "array",
		"map[string]int": "object",
	}
	for goType, want := range tests {
		if got := goTypeToJSONType(goType); got != want {
			t.Errorf("goTypeToJSONType(%q) = %q, want %q", goType, got, want)
		}
	}
}
