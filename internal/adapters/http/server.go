package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"sengol/api"
	"sengol/internal/domain"
	"sengol/internal/policy"
	"sengol/internal/ports"
	"sengol/internal/services/evaluation"
	"sengol/internal/snapshot"
)

const (
	headerAccount = "X-Account-ID"
	headerUser    = "X-User-ID"
)

type Server struct {
	submissions ports.Submissions
	evaluator   ports.Evaluator
	assessments ports.AssessmentRepository
	metrics     http.Handler
	log         *slog.Logger
}

// New wires the handlers. metrics may be nil, in which case /metrics is not mounted.
func New(submissions ports.Submissions, evaluator ports.Evaluator, assessments ports.AssessmentRepository, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{submissions: submissions, evaluator: evaluator, assessments: assessments, metrics: metrics, log: log}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireScope)
		r.Post("/assessments/{id}/submit", s.submit)
		r.Get("/assessments/{id}/scores", s.scores)
		r.Post("/assessments/{id}/evaluate", s.evaluateAll)
		r.Post("/policies/{policyId}/evaluate", s.evaluateOne)
	})
	return r
}

type scopeKey struct{}

func requireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.Header.Get(headerAccount)
		if account == "" {
			writeError(w, http.StatusUnauthorized, "missing "+headerAccount)
			return
		}
		scope := domain.Scope{AccountID: account, UserID: r.Header.Get(headerUser)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, scope)))
	})
}

func scopeFrom(ctx context.Context) domain.Scope {
	scope, _ := ctx.Value(scopeKey{}).(domain.Scope)
	return scope
}

// pathParam binds a simple-style path parameter the way generated chi
// wrappers do. It answers 400 itself when the value cannot be decoded.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid format for parameter %s: %s", name, err))
		return "", false
	}
	return v, true
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	res, err := s.submissions.Submit(r.Context(), scopeFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) scores(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	scores, err := s.submissions.Latest(r.Context(), scopeFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

type evaluateAllRequest struct {
	PolicyIDs []string `json:"policyIds"`
}

// evaluateAll answers 200 even when the batch deadline passed; the body then
// carries timedOut and the partial results.
func (s *Server) evaluateAll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	var req evaluateAllRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	scope := scopeFrom(r.Context())
	a, err := s.assessments.Get(r.Context(), scope, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.evaluator.EvaluateAll(r.Context(), scope, id, snapshot.FromAssessment(a), req.PolicyIDs)
	if err != nil && !errors.Is(err, evaluation.ErrBatchTimeout) {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// evaluateOne evaluates against the stored assessment named by the
// assessmentId query parameter, or against a snapshot object in the body.
func (s *Server) evaluateOne(w http.ResponseWriter, r *http.Request) {
	policyID, ok := pathParam(w, r, "policyId")
	if !ok {
		return
	}
	var assessmentID string
	if err := runtime.BindQueryParameter("form", true, false, "assessmentId", r.URL.Query(), &assessmentID); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid format for parameter assessmentId: %s", err))
		return
	}
	scope := scopeFrom(r.Context())
	var snap domain.Snapshot
	if assessmentID != "" {
		a, err := s.assessments.Get(r.Context(), scope, assessmentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		snap = snapshot.FromAssessment(a)
	} else {
		var attrs map[string]any
		if err := decodeOptional(r.Body, &attrs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		snap = snapshot.FromAttributes(attrs)
	}
	res, err := s.evaluator.EvaluateOne(r.Context(), scope, policyID, snap)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *policy.ValidationError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout")
	default:
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeOptional decodes a JSON body, treating an empty body as zero value.
func decodeOptional(body io.Reader, v any) error {
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
