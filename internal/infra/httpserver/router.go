package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/equity-ledger/internal/application"
	"github.com/bryanwahyu/equity-ledger/internal/application/audits"
	domai "github.com/bryanwahyu/equity-ledger/internal/domain/ai"
	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
	"github.com/bryanwahyu/equity-ledger/internal/middleware"
)

// maxBodyBytes caps synthesis uploads (document bundles with extracted text).
const maxBodyBytes = 32 << 20

type Options struct {
	CORSOrigins []string
	RateLimit   struct {
		Capacity   int
		RefillRate int
	}
	HealthCheckers map[string]middleware.HealthChecker
	Logger         application.Logger
}

// Router is the HTTP surface. Wait blocks until background syntheses finish.
type Router struct {
	chi.Router
	audits *audits.Service
	logger application.Logger
	bg     sync.WaitGroup
}

func NewRouter(svc *audits.Service, opts Options) *Router {
	r := &Router{audits: svc, logger: opts.Logger}
	if r.logger == nil {
		r.logger = application.NopLogger{}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(r.logger))
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/readyz", middleware.ReadinessHandler(opts.HealthCheckers, "database"))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/audits", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreate))
		rt.Route("/{audit}", func(ar chi.Router) {
			if opts.RateLimit.Capacity > 0 {
				ar.Use(middleware.RateLimitMiddleware(opts.RateLimit.Capacity, opts.RateLimit.RefillRate, middleware.AuditKey))
			}
			ar.Get("/", r.wrap(r.handleGet))
			ar.Delete("/", r.wrap(r.handleDelete))
			ar.Post("/synthesize", r.wrap(r.handleSynthesize))
			ar.Get("/documents", r.wrap(r.handleDocuments))
			ar.Get("/events", r.wrap(r.handleEvents))
			ar.Get("/events/verify", r.wrap(r.handleVerify))
			ar.Get("/events/{id}", r.wrap(r.handleEvent))
			ar.Get("/captable", r.wrap(r.handleCapTable))
			ar.Get("/captable/fully-diluted", r.wrap(r.handleFullyDiluted))
			ar.Get("/options", r.wrap(r.handleOptions))
			ar.Get("/issues", r.wrap(r.handleIssues))
			ar.Post("/issues", r.wrap(r.handleMergeIssues))
		})
	})

	r.Router = mux
	return r
}

// Wait blocks until every background synthesis started by this router has returned.
func (r *Router) Wait() { r.bg.Wait() }

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks malformed request input.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return &badRequest{err: fmt.Errorf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br *badRequest
		switch {
		case errors.As(err, &br), errors.Is(err, equity.ErrProjectionInput):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, equity.ErrNotFound), errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, equity.ErrLedgerWriteConflict), errors.Is(err, equity.ErrAuditBusy):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, errors.New("ai quota exceeded"))
		default:
			r.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
			writeError(w, http.StatusInternalServerError, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	_ = writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

func auditID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "audit")
	if err := middleware.ValidateAuditID(id); err != nil {
		return "", &badRequest{err: err}
	}
	return id, nil
}

// POST /v1/audits
// Body: {"company_name": "<name>"}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body audits.CreateAuditCommand
	if req.ContentLength != 0 {
		if err := decodeBody(w, req, &body); err != nil {
			return err
		}
	}
	if err := middleware.ValidateCompanyName(body.CompanyName); err != nil {
		return &badRequest{err: err}
	}
	a, err := r.audits.Create(req.Context(), body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, a)
}

// GET /v1/audits/{audit}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	a, err := r.audits.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// DELETE /v1/audits/{audit}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	if err := r.audits.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/audits/{audit}/synthesize
// Body: {"documents": [Document...]}
// The state guard runs before responding; the synthesis itself runs in the background.
func (r *Router) handleSynthesize(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	var body struct {
		Documents []*equity.Document `json:"documents"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	for i, d := range body.Documents {
		if d == nil {
			return invalid("documents[%d] is null", i)
		}
	}

	if err := r.audits.StartSynthesis(req.Context(), id); err != nil {
		return err
	}

	// jalan di background sampai selesai
	middleware.SynthesisStarted()
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		res, err := r.audits.RunSynthesis(context.Background(), id, body.Documents)
		if err != nil {
			middleware.SynthesisFinished(0, true)
			return
		}
		middleware.SynthesisFinished(res.Events, false)
		r.logger.Info("synthesis finished", "audit", id, "state", res.State, "events", res.Events, "issues", res.Issues)
	}()

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"audit_id":  id,
		"state":     equity.AuditReconciling,
		"progress":  audits.ProgressQueued,
		"documents": len(body.Documents),
		"message":   "synthesis started in background",
	})
}

// GET /v1/audits/{audit}/documents
func (r *Router) handleDocuments(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	docs, err := r.audits.Documents(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, docs)
}

// GET /v1/audits/{audit}/events
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	events, err := r.audits.Events(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, events)
}

// GET /v1/audits/{audit}/events/verify
func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	report, err := r.audits.VerifyLedger(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}

// GET /v1/audits/{audit}/events/{id}
func (r *Router) handleEvent(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	eventID := chi.URLParam(req, "id")
	if err := middleware.ValidateEventID(eventID); err != nil {
		return &badRequest{err: err}
	}
	e, err := r.audits.Event(req.Context(), id, equity.EventID(eventID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, e)
}

// GET /v1/audits/{audit}/captable?as_of_date=YYYY-MM-DD|latest
func (r *Router) handleCapTable(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	snap, err := r.audits.CapTable(req.Context(), id, req.URL.Query().Get("as_of_date"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// GET /v1/audits/{audit}/captable/fully-diluted?as_of_date=
func (r *Router) handleFullyDiluted(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	snap, err := r.audits.FullyDiluted(req.Context(), id, req.URL.Query().Get("as_of_date"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// GET /v1/audits/{audit}/options?as_of_date=
func (r *Router) handleOptions(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	opts, err := r.audits.Options(req.Context(), id, req.URL.Query().Get("as_of_date"))
	if err != nil {
		return err
	}
	if opts == nil {
		opts = []equity.OptionGrantView{}
	}
	return writeJSON(w, http.StatusOK, opts)
}

// GET /v1/audits/{audit}/issues
func (r *Router) handleIssues(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	issues, err := r.audits.Issues(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, issues)
}

// POST /v1/audits/{audit}/issues
// Body: [Issue...]
func (r *Router) handleMergeIssues(w http.ResponseWriter, req *http.Request) error {
	id, err := auditID(req)
	if err != nil {
		return err
	}
	var external []equity.Issue
	if err := decodeBody(w, req, &external); err != nil {
		return err
	}
	merged, err := r.audits.MergeExternalIssues(req.Context(), id, external)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, merged)
}
