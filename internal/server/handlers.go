package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

type modelEntry struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Object   string        `json:"object"`
	Created  int64         `json:"created"`
	OwnedBy  string        `json:"owned_by"`
	Pipeline pipelineFlags `json:"pipeline"`
}

type pipelineFlags struct {
	Type   string `json:"type"`
	Valves bool   `json:"valves"`
}

func (s *Server) listModels(c echo.Context) error {
	created := time.Now().Unix()
	data := make([]modelEntry, 0)
	for _, p := range s.registry.List() {
		for _, m := range p.Models() {
			data = append(data, modelEntry{
				ID:      m.ID,
				Name:    m.Name,
				Object:  "model",
				Created: created,
				OwnedBy: "openwebui",
				Pipeline: pipelineFlags{
					Type:   pipelines.PipelineType,
					Valves: p.Valves() != nil,
				},
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":      data,
		"object":    "list",
		"pipelines": true,
	})
}

type pipelineEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Valves bool   `json:"valves"`
}

func (s *Server) listPipelines(c echo.Context) error {
	data := make([]pipelineEntry, 0)
	for _, p := range s.registry.List() {
		for _, m := range p.Pipelines() {
			data = append(data, pipelineEntry{
				ID:     m.ID,
				Name:   m.Name,
				Type:   pipelines.PipelineType,
				Valves: p.Valves() != nil,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": data})
}

// pipelineWithValves resolves :id to a pipeline that has valves.
func (s *Server) pipelineWithValves(c echo.Context) (*pipelines.Pipeline, error) {
	p, ok := s.registry.Get(c.Param("id"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "pipeline not found")
	}
	if p.Valves() == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "pipeline has no valves")
	}
	return p, nil
}

func (s *Server) getValves(c echo.Context) error {
	p, err := s.pipelineWithValves(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.Valves().Values())
}

func (s *Server) getValvesSpec(c echo.Context) error {
	p, err := s.pipelineWithValves(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.Valves().Schema())
}

func (s *Server) updateValves(c echo.Context) error {
	p, err := s.pipelineWithValves(c)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := p.OnValvesUpdated(c.Request().Context(), data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p.Valves().Values())
}

type chatRequest struct {
	Model    string                  `json:"model"`
	Messages []pipelines.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int               `json:"index"`
	Message      pipelines.Message `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// chatCompletions runs the addressed pipeline and returns its string result.
// Pipeline failures are answers too: the "Error: ..." text comes back with 200.
func (s *Server) chatCompletions(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request: "+err.Error())
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request: "+err.Error())
	}

	p, ok := s.registry.Get(req.Model)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "pipeline "+req.Model+" not found")
	}

	ctx := c.Request().Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	content := p.Pipe(ctx, latestUserMessage(req.Messages), req.Model, req.Messages, body)

	return c.JSON(http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      pipelines.Message{Role: pipelines.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	})
}

// latestUserMessage returns the flat text of the last user message, or "".
func latestUserMessage(messages []pipelines.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != pipelines.RoleUser {
			continue
		}
		text, err := messages[i].Content.Flatten()
		if err != nil {
			return ""
		}
		return text
	}
	return ""
}
