package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/mistakeknot/nikola/internal/agent"
	"github.com/mistakeknot/nikola/internal/boq"
	"github.com/mistakeknot/nikola/internal/evm"
	"github.com/mistakeknot/nikola/internal/llm"
	"github.com/mistakeknot/nikola/internal/memory"
	"github.com/mistakeknot/nikola/pkg/httpapi"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"engine":  Engine,
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type chatRequest struct {
	Message  *string       `json:"message"`
	Messages []llm.Message `json:"messages"`
}

// handleChat answers through the rule engine. A payload carrying
// neither "message" nor "messages" gets a 200 with an error string,
// keeping the conversational surface always answering.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	var text string
	switch {
	case req.Message != nil:
		text = *req.Message
	case req.Messages != nil:
		// Conversation form: answer the latest turn.
		if n := len(req.Messages); n > 0 {
			text = req.Messages[n-1].Content
		}
	default:
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{
			"error": "expected a 'message' or 'messages' field",
		})
		return
	}
	reply := s.matcher.Respond(text)
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"engine":  Engine,
		"reply":   reply.Reply,
		"intents": reply.Intents,
	})
}

// handleChatLLM forwards to the provider. Every failure, including a
// missing credential, is a 200 with a marker reply; the endpoint never
// hard-fails.
func (s *Server) handleChatLLM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []llm.Message `json:"messages"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"reply":    fmt.Sprintf("[llm-error] invalid request body: %v", err),
			"received": 0,
		})
		return
	}
	reply, err := s.llm.Complete(r.Context(), req.Messages)
	if err != nil {
		reply = fmt.Sprintf("[llm-error] %v", err)
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"reply":    reply,
		"received": len(req.Messages),
	})
}

func (s *Server) handleEVM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PV float64  `json:"PV"`
		EV float64  `json:"EV"`
		AC *float64 `json:"AC"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	res := evm.Compute(evm.Inputs{PV: req.PV, EV: req.EV, AC: req.AC})
	resp := map[string]any{"status": res.Status}
	// JSON has no NaN token: the undefined SPI goes on the wire as
	// null with the key present; an undefined CPI omits the key.
	if math.IsNaN(res.SPI) {
		resp["SPI"] = nil
	} else {
		resp["SPI"] = evm.Round3(res.SPI)
	}
	if res.CPI != nil {
		resp["CPI"] = evm.Round3(*res.CPI)
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBoQTotal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []boq.Line `json:"items"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, boq.Total(req.Items))
}

func (s *Server) handleBoQUpload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "multipart 'file' field is required"})
		return
	}
	defer file.Close()

	summary, err := boq.TotalTable(file)
	if err != nil {
		var missing *boq.MissingColumnsError
		if errors.As(err, &missing) {
			httpapi.WriteError(w, http.StatusUnprocessableEntity, httpapi.ErrMissingColumns, map[string]any{
				"missing": missing.Columns,
				"detail":  missing.Error(),
			})
			return
		}
		var parse *boq.ParseError
		if errors.As(err, &parse) {
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrParse, map[string]any{"detail": parse.Cause})
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.ErrInternal, nil)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAgentPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"goal":  req.Goal,
		"steps": agent.Plan(req.Goal),
	})
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	skill, result, err := agent.Run(req.Type, req.Data)
	if err != nil {
		var unknown *agent.UnknownTaskError
		if errors.As(err, &unknown) {
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrUnknownTask, map[string]any{"hint": agent.Hint})
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.ErrInternal, nil)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"skill":  skill,
		"result": result,
	})
}

func (s *Server) handleMemoryPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
		Meta  json.RawMessage `json:"meta"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "invalid JSON body"})
		return
	}
	if req.Key == "" {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "key is required"})
		return
	}
	if len(req.Value) == 0 {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "value is required"})
		return
	}
	rec, err := s.store.Put(req.Key, req.Value, req.Meta)
	if err != nil {
		s.logger.Error("memory put failed", "key", req.Key, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.ErrInternal, nil)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"key":        rec.Key,
		"updated_at": rec.UpdatedAt,
	})
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.ErrInvalidRequest, map[string]any{"detail": "key query parameter is required"})
		return
	}
	rec, err := s.store.Get(key)
	if errors.Is(err, memory.ErrNotFound) {
		httpapi.WriteError(w, http.StatusNotFound, httpapi.ErrNotFound, map[string]any{"key": key})
		return
	}
	if err != nil {
		s.logger.Error("memory get failed", "key", key, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.ErrInternal, nil)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.serveStatic(w, "index.html")
}

// handleFavicon serves the bundled icon, falling back to the UI entry
// document when no icon ships with the build.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	if data, err := fs.ReadFile(staticFS, "static/favicon.ico"); err == nil {
		w.Header().Set("Content-Type", "image/x-icon")
		_, _ = w.Write(data)
		return
	}
	s.serveStatic(w, "index.html")
}

func (s *Server) serveStatic(w http.ResponseWriter, name string) {
	data, err := fs.ReadFile(staticFS, "static/"+name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}
