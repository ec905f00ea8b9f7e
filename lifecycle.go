package pipelines

import (
	"context"
	"io"
	"sync"

	"github.com/zoobzio/capitan"
)

type scopeKey struct{}

// callScope owns the transient handles of a single Execute call.
// It holds at most one in-flight response at a time.
type callScope struct {
	mu       sync.Mutex
	response io.Closer
}

func withCallScope(ctx context.Context) (context.Context, *callScope) {
	scope := &callScope{}
	return context.WithValue(ctx, scopeKey{}, scope), scope
}

// hold makes c the in-flight response, closing any previous one.
func (s *callScope) hold(c io.Closer) {
	s.mu.Lock()
	prev := s.response
	s.response = c
	s.mu.Unlock()
	if prev != nil && prev != c {
		_ = prev.Close()
	}
}

// releaseHandle closes c and clears the slot if c still occupies it.
func (s *callScope) releaseHandle(c io.Closer) {
	s.mu.Lock()
	if s.response == c {
		s.response = nil
	}
	s.mu.Unlock()
	_ = c.Close()
}

// release closes whatever is still held.
func (s *callScope) release() {
	s.mu.Lock()
	r := s.response
	s.response = nil
	s.mu.Unlock()
	if r != nil {
		_ = r.Close()
	}
}

// held reports whether a response is currently tracked.
func (s *callScope) held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response != nil
}

// TrackResponse registers body as the in-flight response of the call carried
// by ctx. The returned func closes body and clears the slot; calling it more
// than once is harmless. Outside a pipeline call the body is simply closed.
func TrackResponse(ctx context.Context, body io.Closer) func() {
	scope, ok := ctx.Value(scopeKey{}).(*callScope)
	if !ok || scope == nil {
		return func() { _ = body.Close() }
	}
	scope.hold(body)
	return func() { scope.releaseHandle(body) }
}

// Cleanup closes the client handles of both providers.
// Close errors are reported as events and never returned.
func (p *Pipeline) Cleanup(ctx context.Context) {
	for _, provider := range []any{p.search, p.synthesis} {
		closer, ok := provider.(io.Closer)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					capitan.Error(ctx, ResourceCloseFailed,
						PipelineIDKey.Field(p.id),
						ErrorKey.Field("panic during close"),
					)
				}
			}()
			if err := closer.Close(); err != nil {
				capitan.Error(ctx, ResourceCloseFailed,
					PipelineIDKey.Field(p.id),
					ErrorKey.Field(err.Error()),
				)
			}
		}()
	}
}

// OnStartup is called once by the host before serving requests.
func (p *Pipeline) OnStartup(ctx context.Context) error {
	capitan.Info(ctx, PipelineStartup, PipelineIDKey.Field(p.id))
	return nil
}

// OnShutdown is called once by the host when it stops.
func (p *Pipeline) OnShutdown(ctx context.Context) error {
	capitan.Info(ctx, PipelineShutdown, PipelineIDKey.Field(p.id))
	p.Cleanup(ctx)
	return nil
}

// OnValvesUpdated applies a partial valves update and rebuilds derived headers.
// Pipelines without valves ignore the call.
func (p *Pipeline) OnValvesUpdated(ctx context.Context, data []byte) error {
	if p.valves == nil {
		return nil
	}
	version, err := p.valves.UpdateJSON(data)
	if err != nil {
		return err
	}
	capitan.Info(ctx, ValvesUpdated,
		PipelineIDKey.Field(p.id),
		ValvesVersionKey.Field(int(version)),
	)
	return nil
}
