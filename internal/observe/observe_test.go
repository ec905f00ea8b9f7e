package observe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestObserverRecordsRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(false)
	o := Attach(zap.New(core), metrics)
	defer o.Close()

	mock := pipelines.NewMockProvider()
	p := pipelines.New("observed", "Observed", mock, mock)
	msgs := []pipelines.ChatMessage{{Role: pipelines.RoleUser, Content: pipelines.Text("see https://a.io")}}
	if _, err := p.Execute(context.Background(), "q", "observed", msgs, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("observed", "success")) == 1
	})
	eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CitationsTotal.WithLabelValues("observed")) == 1
	})
	eventually(t, func() bool {
		return logs.FilterMessage(string(pipelines.RequestCompleted)).Len() == 1
	})

	entry := logs.FilterMessage(string(pipelines.RequestCompleted)).All()[0]
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("Expected info level, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["pipeline"] != "observed" {
		t.Errorf("Expected pipeline field, got %v", fields)
	}
	if _, ok := fields["request_id"]; !ok {
		t.Error("Expected request_id field")
	}
}

func TestObserverRecordsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(false)
	o := Attach(zap.New(core), metrics)
	defer o.Close()

	mock := pipelines.NewMockProvider()
	mock.SetAvailable(false)
	p := pipelines.New("observed-fail", "Observed", mock, mock)
	msgs := []pipelines.ChatMessage{{Role: pipelines.RoleUser, Content: pipelines.Text("q")}}
	_, _ = p.Execute(context.Background(), "q", "observed-fail", msgs, nil)

	eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("observed-fail", "upstream_api")) == 1
	})
	eventually(t, func() bool {
		return logs.FilterMessage(string(pipelines.RequestFailed)).Len() == 1
	})

	entry := logs.FilterMessage(string(pipelines.RequestFailed)).All()[0]
	if entry.Level != zapcore.ErrorLevel {
		t.Errorf("Expected error level, got %s", entry.Level)
	}
	if msg, _ := entry.ContextMap()["error"].(string); !strings.Contains(msg, "503") {
		t.Errorf("Expected error message, got %v", entry.ContextMap())
	}
	if stage := entry.ContextMap()["stage"]; stage != pipelines.StageSearch {
		t.Errorf("Expected stage %q, got %v", pipelines.StageSearch, stage)
	}
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics(true)
	metrics.UpstreamCalls.WithLabelValues("perplexity", "success").Inc()

	n, err := testutil.GatherAndCount(metrics.Registry(), "pipelines_upstream_calls_total")
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 series, got %d", n)
	}
	if metrics.Handler() == nil {
		t.Error("Expected a handler")
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger("debug", format)
		if err != nil {
			t.Fatalf("NewLogger(%s) failed: %v", format, err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("Expected debug enabled for %s", format)
		}
	}
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Error("Expected error for invalid level")
	}
}
