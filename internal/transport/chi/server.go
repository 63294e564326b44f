package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
	healthuc "github.com/helicase-ai/evidex/internal/usecase/health"
)

const defaultMaxRelated = 5

// errorCode is the machine-readable error identifier in error responses.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeValidationFailed errorCode = "validation_failed"
	codeIndexUnavailable errorCode = "index_unavailable"
	codeEmbeddingError   errorCode = "embedding_provider_error"
	codeNotFound         errorCode = "not_found"
	codeInternalError    errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// QueryRunner runs the retrieval pipeline for one query.
type QueryRunner interface {
	Query(ctx context.Context, q domain.Query) (domain.ContextPackage, error)
}

// GraphStore serves cross-document relationships and accepts reloads.
type GraphStore interface {
	RelatedDocuments(docID string, maxResults int) []domain.RelatedDocument
	Reload(ctx context.Context) error
	Size() int
}

// Server is the HTTP API over the retrieval pipeline.
type Server struct {
	pipeline      QueryRunner
	graph         GraphStore
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(pipeline QueryRunner, graph GraphStore, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		pipeline: pipeline,
		graph:    graph,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingError),
		sentinelHandler(domain.ErrFragmentNotFound, http.StatusNotFound, codeNotFound),
	}
	return s
}

// Routes mounts the API endpoints on a router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/query", s.handleQuery)
	r.Get("/v1/related/{docID}", s.handleRelated)
	r.Post("/v1/graph/reload", s.handleGraphReload)
	r.Get("/healthz", s.handleHealth)
}

type queryRequest struct {
	Query    string   `json:"query"`
	TypeHint string   `json:"type_hint,omitempty"`
	DocTypes []string `json:"doc_types,omitempty"`
}

// handleQuery handles POST /v1/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}

	pkg, err := s.pipeline.Query(r.Context(), domain.Query{
		Text:     req.Query,
		TypeHint: domain.QueryType(req.TypeHint),
		DocTypes: req.DocTypes,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

type relatedResponse struct {
	DocumentID string                   `json:"document_id"`
	Related    []relatedDocumentPayload `json:"related"`
}

type relatedDocumentPayload struct {
	DocumentID     string   `json:"document_id"`
	DocType        string   `json:"doc_type,omitempty"`
	SharedEntities []string `json:"shared_entities"`
}

// handleRelated handles GET /v1/related/{docID}.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if docID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "document id is required")
		return
	}

	maxResults := defaultMaxRelated
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "max must be a positive integer")
			return
		}
		maxResults = n
	}

	related := s.graph.RelatedDocuments(docID, maxResults)
	resp := relatedResponse{DocumentID: docID, Related: make([]relatedDocumentPayload, len(related))}
	for i, rel := range related {
		resp.Related[i] = relatedDocumentPayload{
			DocumentID:     rel.DocumentID,
			DocType:        rel.DocType,
			SharedEntities: rel.SharedEntities,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGraphReload handles POST /v1/graph/reload.
func (s *Server) handleGraphReload(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.Reload(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.graph.Size(),
	})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrIndexUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrFragmentNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
