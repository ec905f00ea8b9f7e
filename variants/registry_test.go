package variants

import (
	"context"
	"testing"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

func TestRegistry(t *testing.T) {
	mock := pipelines.NewMockProvider()
	a := pipelines.New("a", "A", mock, mock)
	b := pipelines.New("b", "B", mock, mock)

	r := NewRegistry(a, b)

	if got, ok := r.Get("b"); !ok || got != b {
		t.Error("Expected to find pipeline b")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Unexpected pipeline for unknown id")
	}
	if err := r.Register(pipelines.New("a", "dup", mock, mock)); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	list := r.List()
	if len(list) != 2 || list[0].ID() != "a" || list[1].ID() != "b" {
		t.Errorf("Unexpected order: %v", list)
	}
	models := r.Models()
	if len(models) != 2 || models[1].Name != "B" {
		t.Errorf("Unexpected catalog: %v", models)
	}

	ctx := context.Background()
	if err := r.Startup(ctx); err != nil {
		t.Errorf("Startup failed: %v", err)
	}
	if err := r.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default(Endpoints{})
	ids := []string{}
	for _, m := range r.Models() {
		ids = append(ids, m.ID)
	}
	if len(ids) != 2 || ids[0] != DirectID || ids[1] != OpenRouterID {
		t.Errorf("Unexpected default catalog: %v", ids)
	}
}
