package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"journalagent/agent"
	"journalagent/events"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/tools"
)

// maxBodyBytes bounds a chat request: four images plus history.
const maxBodyBytes = 32 << 20

// Error codes for failures reported before a run starts.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeMissingLLMCredential = "missing_llm_credential"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// chatResponse is the body of the non-streaming endpoint; it mirrors the
// done event.
type chatResponse struct {
	Success      bool                      `json:"success"`
	FinalText    string                    `json:"final_text"`
	Citations    []tools.Citation          `json:"citations"`
	EmbeddedData map[string]map[string]any `json:"embedded_data,omitempty"`
	Metadata     map[string]any            `json:"metadata"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type toolsResponse struct {
	Tools     []toolInfo `json:"tools"`
	Degraded  bool       `json:"degraded"`
	FetchedAt time.Time  `json:"fetched_at"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: code, Message: message})
}

// prepare decodes and validates the body and resolves the agent. It writes
// the error response itself and returns ok=false on failure.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (*agent.Agent, agent.Request, bool) {
	var body ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "request body is not valid JSON")
		return nil, agent.Request{}, false
	}
	req, err := body.toAgentRequest(middleware.GetReqID(r.Context()))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return nil, agent.Request{}, false
	}
	ag, err := s.agents.For(r.Context(), body.apiKey())
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		respondError(w, http.StatusServiceUnavailable, CodeMissingLLMCredential, "no language model credential is configured")
		return nil, agent.Request{}, false
	case err != nil:
		s.logger.Error("resolve agent", err, loggerv2.String("request_id", req.RequestID))
		respondError(w, http.StatusBadGateway, agent.CodeLLMError, "the language model could not be initialised")
		return nil, agent.Request{}, false
	}
	return ag, req, true
}

func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	ag, req, ok := s.prepare(w, r)
	if !ok {
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, agent.CodeInternalError, "streaming not supported")
		return
	}

	stream := events.NewStream(s.opts.StreamBuffer)
	s.track(ag.RunStream(r.Context(), req, stream, s.opts.RunTimeout))

	for {
		select {
		case ev, open := <-stream.Events():
			if !open {
				return
			}
			if err := sse.write(ev); err != nil {
				s.logger.Warn("client write failed, abandoning stream",
					loggerv2.String("request_id", req.RequestID), loggerv2.Error(err))
				stream.Abandon()
				return
			}
		case <-r.Context().Done():
			s.logger.Info("client disconnected", loggerv2.String("request_id", req.RequestID))
			stream.Abandon()
			return
		}
	}
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ag, req, ok := s.prepare(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RunTimeout)
	defer cancel()

	emitter := events.NewEventEmitter(req.RequestID, s.logger)
	out, err := ag.Run(ctx, req, emitter)
	if err != nil {
		respondError(w, agent.ErrorStatus(err), agent.ErrorCode(err), agent.PublicMessage(err))
		return
	}

	resp := chatResponse{
		Success:   out.Success,
		FinalText: out.FinalText,
		Citations: out.Citations,
		Metadata:  out.Metadata.Map(),
	}
	if resp.Citations == nil {
		resp.Citations = []tools.Citation{}
	}
	if len(out.EmbeddedData) > 0 {
		resp.EmbeddedData = make(map[string]map[string]any, len(out.EmbeddedData))
		for k, v := range out.EmbeddedData {
			resp.EmbeddedData[string(k)] = v
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, describeTools(s.registry.GetTools(r.Context())))
}

func (s *Server) refreshTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, describeTools(s.registry.Refresh(r.Context())))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"llm_configured": s.agents.Configured(),
	})
}
