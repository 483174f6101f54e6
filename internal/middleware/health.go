package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckerFunc adapts a plain function, e.g. an object store ping.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the ledger database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Failing   []string               `json:"failing,omitempty"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// runChecks runs the named checkers, or all of them when names is empty.
// Names without a registered checker are ignored (the memory store has no database).
func runChecks(ctx context.Context, checkers map[string]HealthChecker, names ...string) HealthStatus {
	if len(names) == 0 {
		for name := range checkers {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	st := HealthStatus{Timestamp: time.Now().UTC(), Checks: make(map[string]CheckStatus)}
	for _, name := range names {
		checker, ok := checkers[name]
		if !ok {
			continue
		}
		if err := checker.Check(ctx); err != nil {
			st.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			st.Failing = append(st.Failing, name)
			continue
		}
		st.Checks[name] = CheckStatus{Status: "healthy"}
	}
	return st
}

func writeStatus(w http.ResponseWriter, st HealthStatus) {
	code := http.StatusOK
	if len(st.Failing) > 0 {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(st)
}

// HealthHandler reports every dependency: database, object store and the rest.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		st := runChecks(ctx, checkers)
		st.Status = "healthy"
		if len(st.Failing) > 0 {
			st.Status = "unhealthy"
		}
		writeStatus(w, st)
	}
}

// ReadinessHandler only runs the checks a synthesis cannot do without. An unreachable
// object store degrades exports, so it does not take the service out of rotation.
func ReadinessHandler(checkers map[string]HealthChecker, required ...string) http.HandlerFunc {
	if len(required) == 0 {
		required = []string{"database"}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		st := runChecks(ctx, checkers, required...)
		st.Status = "ready"
		if len(st.Failing) > 0 {
			st.Status = "not_ready"
		}
		writeStatus(w, st)
	}
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
