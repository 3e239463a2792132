// Package chi exposes the reformulation pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	chirouter "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
	logpkg "github.com/kailas-cloud/queryforge/internal/logger"
	"github.com/kailas-cloud/queryforge/internal/metrics"
	"github.com/kailas-cloud/queryforge/internal/pipeline"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/retriever"
	healthuc "github.com/kailas-cloud/queryforge/internal/usecase/health"
	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
	"github.com/kailas-cloud/queryforge/internal/version"
)

const maxBodyBytes = 32 << 20

// Pipeline is the subset of *pipeline.Pipeline the server needs.
type Pipeline interface {
	Run(ctx context.Context, method, model string, params pipeline.Params,
		queries []domain.QueryItem, opts pipeline.RunOptions) ([]domain.ReformulationResult, error)
	NewRetriever(sc pipeline.SearcherConfig) (*retriever.Retriever, error)
	Methods() []string
	Searchers() []string
	Prompts() *prompt.Bank
}

// Defaults fill the fields a request leaves empty.
type Defaults struct {
	Method string
	Model  string
	// Params apply only when the request uses the default method.
	Params           map[string]any
	NumThreads       int
	RetrievalK       int
	RetrievalThreads int
	MaxQueries       int
}

// Server implements the HTTP API.
type Server struct {
	pipeline  Pipeline
	retriever *retriever.Retriever
	health    *healthuc.Service
	usage     *usageuc.Service
	defaults  Defaults
	logger    *zap.Logger
}

// NewServer creates an HTTP API server. defaultRetriever serves /v1/retrieve
// requests that name no searcher and may be nil; health and usage may be nil.
func NewServer(
	p Pipeline,
	defaultRetriever *retriever.Retriever,
	health *healthuc.Service,
	usage *usageuc.Service,
	defaults Defaults,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if usage == nil {
		usage = usageuc.New()
	}
	if defaults.MaxQueries <= 0 {
		defaults.MaxQueries = 1000
	}
	return &Server{
		pipeline:  p,
		retriever: defaultRetriever,
		health:    health,
		usage:     usage,
		defaults:  defaults,
		logger:    logger,
	}
}

// Router builds the chi router with the middleware chain. Bearer auth is on
// when apiKeys is non-empty.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chirouter.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/reformulate", s.Reformulate)
		r.Post("/retrieve", s.Retrieve)
		r.Get("/methods", s.ListMethods)
		r.Get("/searchers", s.ListSearchers)
		r.Get("/prompts", s.ListPrompts)
		r.Get("/prompts/{id}", s.GetPrompt)
		r.Get("/usage", s.GetUsage)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorResponseCodeBadRequest, "route not found")
	})
	return r
}

// Reformulate handles POST /v1/reformulate.
func (s *Server) Reformulate(w http.ResponseWriter, r *http.Request) {
	var req ReformulateRequest
	if !s.decode(w, r, &req) {
		return
	}
	queries, ok := s.queries(w, req.Queries)
	if !ok {
		return
	}

	method := req.Method
	params := req.Params
	if method == "" || method == s.defaults.Method {
		method = s.defaults.Method
		params = kwargs.Merge(s.defaults.Params, req.Params)
	}
	if method == "" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "method is required")
		return
	}
	model := req.Model
	if model == "" {
		model = s.defaults.Model
	}
	threads := req.NumThreads
	if threads <= 0 {
		threads = s.defaults.NumThreads
	}

	ctx := logpkg.With(r.Context(), zap.String("method", method), zap.String("model", model))
	ctx, usage := domain.NewContextWithUsage(ctx)
	results, err := s.pipeline.Run(ctx, method, model, params, queries, pipeline.RunOptions{
		Contexts:   contextsFromDTO(req.Contexts),
		NumThreads: threads,
	})
	if err != nil {
		s.handleDomainError(w, r.WithContext(ctx), err)
		return
	}

	promptTokens, completionTokens, calls := usage.Snapshot()
	w.Header().Set("X-LLM-Prompt-Tokens", strconv.Itoa(promptTokens))
	w.Header().Set("X-LLM-Completion-Tokens", strconv.Itoa(completionTokens))
	writeJSON(w, http.StatusOK, ReformulateResponse{
		Method:  method,
		Model:   model,
		Results: resultsToDTO(results),
		Usage:   Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, Calls: calls},
	})
}

// Retrieve handles POST /v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !s.decode(w, r, &req) {
		return
	}
	queries, ok := s.queries(w, req.Queries)
	if !ok {
		return
	}

	ret := s.retriever
	if req.Searcher != nil || ret == nil {
		var sc pipeline.SearcherConfig
		if req.Searcher != nil {
			sc = pipeline.SearcherConfig{Type: req.Searcher.Type, Kwargs: req.Searcher.Kwargs}
		}
		built, err := s.pipeline.NewRetriever(sc)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		defer func() {
			if cerr := built.Close(); cerr != nil {
				s.logger.Warn("close request retriever", zap.Error(cerr))
			}
		}()
		ret = built
	}

	k := req.K
	if k <= 0 {
		k = s.defaults.RetrievalK
	}
	threads := req.NumThreads
	if threads <= 0 {
		threads = s.defaults.RetrievalThreads
	}
	hits, err := ret.RetrieveBatch(r.Context(), domain.Texts(queries), k, threads)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := make([]RetrieveResult, len(queries))
	for i, q := range queries {
		out[i] = RetrieveResult{QID: q.QID(), Hits: hitsToDTO(hits[i])}
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{Searcher: ret.Info(), Results: out})
}

// ListMethods handles GET /v1/methods.
func (s *Server) ListMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NamesResponse{Items: s.pipeline.Methods()})
}

// ListSearchers handles GET /v1/searchers.
func (s *Server) ListSearchers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NamesResponse{Items: s.pipeline.Searchers()})
}

// ListPrompts handles GET /v1/prompts. The optional family query parameter
// narrows the list to one method family.
func (s *Server) ListPrompts(w http.ResponseWriter, r *http.Request) {
	bank := s.pipeline.Prompts()
	var entries []prompt.Entry
	if family := r.URL.Query().Get("family"); family != "" {
		entries = bank.Family(family)
	} else {
		for _, id := range bank.IDs() {
			e, _ := bank.Get(id)
			entries = append(entries, e)
		}
	}
	items := make([]PromptSummary, len(entries))
	for i, e := range entries {
		items[i] = promptSummary(e)
	}
	writeJSON(w, http.StatusOK, PromptListResponse{Items: items})
}

// GetPrompt handles GET /v1/prompts/{id}.
func (s *Server) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id := chirouter.URLParam(r, "id")
	e, ok := s.pipeline.Prompts().Get(id)
	if !ok {
		s.handleDomainError(w, r, fmt.Errorf("%w: %q", domain.ErrPromptNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, promptDetail(e))
}

// GetUsage handles GET /v1/usage. period is day (default) or month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageToDTO(s.usage.Report(period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: string(healthuc.Healthy), Version: version.Version}
	httpStatus := http.StatusOK
	if s.health != nil {
		report := s.health.Check(r.Context())
		resp.Status = string(report.Status)
		resp.Checks = make(map[string]string, len(report.Checks))
		for k, v := range report.Checks {
			resp.Checks[k] = string(v)
		}
		if report.Status != healthuc.Healthy {
			httpStatus = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, httpStatus, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) queries(w http.ResponseWriter, items []QueryItem) ([]domain.QueryItem, bool) {
	switch {
	case len(items) == 0:
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "queries must not be empty")
		return nil, false
	case len(items) > s.defaults.MaxQueries:
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed,
			fmt.Sprintf("too many queries: %d > %d", len(items), s.defaults.MaxQueries))
		return nil, false
	}
	queries, err := queriesFromDTO(items)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, err.Error())
		return nil, false
	}
	return queries, true
}
