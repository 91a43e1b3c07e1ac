package server

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gkobilansky/funnelstat/internal/ledger"
	"github.com/gkobilansky/funnelstat/internal/report"
	"github.com/gkobilansky/funnelstat/internal/stats"
	"github.com/gkobilansky/funnelstat/internal/store"
)

var errBadQuery = eris.New("bad query parameter")

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes,omitempty"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	response := HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	}
	if sq, ok := s.store.(*store.SQLiteStore); ok {
		row := sq.DB().QueryRowContext(r.Context(), "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&response.DBSizeBytes); err != nil {
			s.log.Warn("health: database size", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type ExperimentResponse struct {
	*store.Experiment
	Events int `json:"events"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	response := make([]ExperimentResponse, 0, len(experiments))
	for _, exp := range experiments {
		n, err := s.store.CountEvents(r.Context(), exp.ID)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		response = append(response, ExperimentResponse{Experiment: exp, Events: n})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	aggs, err := s.ledger.Aggregate(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if len(aggs) == 0 {
		writeError(w, http.StatusNotFound, "experiment '"+id+"' not found")
		return
	}

	writeJSON(w, http.StatusOK, aggs)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	opts := stats.AnalyzeOptions{
		Metric:     q.metric("metric"),
		Confidence: q.floatVal("confidence", s.opts.Confidence),
		Power:      q.floatVal("power", s.opts.Power),
	}
	if q.err != nil {
		s.writeErr(w, q.err)
		return
	}

	res, err := s.reporter.Results(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBayesian(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	metric := q.metric("metric")
	opts := stats.BayesianOptions{
		Simulations: q.intVal("simulations", s.opts.Simulations),
		Workers:     s.opts.Workers,
	}
	if seed := q.uintVal("seed"); seed != nil {
		opts.Source = rand.NewPCG(*seed, *seed)
	}
	if q.err != nil {
		s.writeErr(w, q.err)
		return
	}

	rep, err := s.reporter.Bayesian(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("treatment"), metric, opts)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSequential(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	metric := q.metric("metric")
	period := q.duration("period", 24*time.Hour)
	alpha := q.floatVal("alpha", stats.DefaultAlpha)
	if q.err != nil {
		s.writeErr(w, q.err)
		return
	}

	rep, err := s.reporter.Sequential(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("treatment"), metric, period, alpha)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// query parses optional query parameters, keeping the first error.
type query struct {
	r   *http.Request
	err error
}

func (q *query) get(key string) string {
	return q.r.URL.Query().Get(key)
}

func (q *query) fail(key string, err error) {
	if q.err == nil {
		q.err = eris.Wrapf(errBadQuery, "%s: %v", key, err)
	}
}

func (q *query) metric(key string) store.EventType {
	v := q.get(key)
	if v == "" {
		return 0
	}
	t, err := store.ParseEventType(v)
	if err != nil {
		q.fail(key, err)
	}
	return t
}

func (q *query) floatVal(key string, def float64) float64 {
	v := q.get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		q.fail(key, err)
	}
	return f
}

func (q *query) intVal(key string, def int) int {
	v := q.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.fail(key, err)
	}
	return n
}

func (q *query) uintVal(key string) *uint64 {
	v := q.get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		q.fail(key, err)
		return nil
	}
	return &n
}

func (q *query) duration(key string, def time.Duration) time.Duration {
	v := q.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		q.fail(key, err)
	}
	return d
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errBadQuery),
		errors.Is(err, stats.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, report.ErrUnknownVariant):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
