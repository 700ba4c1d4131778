// Package http exposes the stepflow runtime over HTTP for the embedded
// form widget: render the current step, advance, retreat, and submit.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stepflow-dev/stepflow"
	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/internal/pipeline"
	"github.com/stepflow-dev/stepflow/internal/runtime"
	"github.com/stepflow-dev/stepflow/pkg/domain"
)

const sessionCookie = "stepflow_session"

// Server handles the visitor-facing form API.
type Server struct {
	engine *stepflow.Engine
	logger *slog.Logger
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine *stepflow.Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Route("/forms/{slug}", func(r chi.Router) {
		r.Get("/", s.handleCurrent)
		r.Post("/next", s.handleNext)
		r.Post("/back", s.handleBack)
		r.Post("/submit", s.handleSubmit)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StepResponse is the render model returned after every navigation call.
type StepResponse struct {
	Step        *domain.Step `json:"step,omitempty"`
	Progress    int          `json:"progress"`
	SessionID   string       `json:"sessionId"`
	ExternalURL string       `json:"externalUrl,omitempty"`
}

// NoticeResponse is a structured user-visible rejection.
type NoticeResponse struct {
	Kind   string `json:"kind"`
	Notice string `json:"notice"`
}

// NextRequest is the body of POST /forms/{slug}/next.
type NextRequest struct {
	Target     string            `json:"target,omitempty"`
	ActionKind string            `json:"actionKind,omitempty"`
	OptionText string            `json:"optionText,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// SubmitRequest is the body of POST /forms/{slug}/submit.
type SubmitRequest struct {
	Fields   map[string]string `json:"fields,omitempty"`
	PageURL  string            `json:"pageUrl,omitempty"`
	Referrer string            `json:"referrer,omitempty"`
	UTM      map[string]string `json:"utm,omitempty"`
}

// SubmitResponse is the visitor-facing success shape; duplicates look
// the same minus the lead id.
type SubmitResponse struct {
	RedirectURL string `json:"redirectUrl"`
	LeadID      string `json:"leadId,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "stepflow-http",
		"version": stepflow.Version,
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := s.sessionKey(w, r)

	view, err := s.engine.Current(r.Context(), slug, key)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse(view))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := s.sessionKey(w, r)

	var body NextRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := s.engine.Advance(r.Context(), slug, key, runtime.AdvanceRequest{
		Target:     body.Target,
		ActionKind: body.ActionKind,
		OptionText: body.OptionText,
		Fields:     body.Fields,
	})
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	if outcome.ExternalURL != "" {
		writeJSON(w, http.StatusOK, StepResponse{ExternalURL: outcome.ExternalURL, SessionID: key})
		return
	}
	writeJSON(w, http.StatusOK, stepResponse(outcome.View))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := s.sessionKey(w, r)

	view, err := s.engine.Retreat(r.Context(), slug, key)
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, stepResponse(view))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := s.sessionKey(w, r)

	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Submit(r.Context(), slug, key, body.Fields, pipeline.SubmissionContext{
		PageURL:   body.PageURL,
		Referrer:  body.Referrer,
		UserAgent: r.UserAgent(),
		UTM:       body.UTM,
	})
	if err != nil {
		s.writeError(w, r, slug, err)
		return
	}

	resp := SubmitResponse{
		RedirectURL: result.RedirectURL,
		Urgency:     string(result.Urgency),
	}
	if result.Lead != nil {
		resp.LeadID = result.Lead.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionKey resolves the visitor session: the X-Session-Key header
// wins, then the session cookie; a brand new visitor gets a cookie.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) string {
	if key := r.Header.Get("X-Session-Key"); key != "" {
		return key
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	key := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, slug string, err error) {
	var vErr *pipeline.ValidationError
	switch {
	case errors.Is(err, domain.ErrFlowNotFound):
		writeJSON(w, http.StatusNotFound, NoticeResponse{Kind: "flow_not_found", Notice: "form not found"})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, NoticeResponse{Kind: vErr.Stage, Notice: vErr.Message})
	case errors.Is(err, domain.ErrNoNextStep):
		writeJSON(w, http.StatusUnprocessableEntity, NoticeResponse{Kind: "no_next_step", Notice: "no next step configured"})
	case errors.Is(err, domain.ErrStepNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, NoticeResponse{Kind: "step_not_found", Notice: "step not found"})
	default:
		s.logger.Error("request failed", "form", slug, "path", r.URL.Path, "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func stepResponse(view *stepflow.StepView) StepResponse {
	return StepResponse{
		Step:      view.Step,
		Progress:  view.Progress,
		SessionID: view.State.SessionID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
