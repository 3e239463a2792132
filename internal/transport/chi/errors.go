package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// defaultErrorHandlers map the domain sentinels to HTTP statuses. Order matters:
// the first match wins.
var defaultErrorHandlers = []errorHandler{
	sentinelHandler(domain.ErrUnknownRegistryKey, http.StatusNotFound, ErrorResponseCodeUnknownName),
	sentinelHandler(domain.ErrPromptNotFound, http.StatusNotFound, ErrorResponseCodePromptNotFound),
	sentinelHandler(domain.ErrTemplateRender, http.StatusUnprocessableEntity, ErrorResponseCodeTemplateError),
	sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
	sentinelHandler(domain.ErrBudgetExceeded, http.StatusTooManyRequests, ErrorResponseCodeBudgetExceeded),
	sentinelHandler(domain.ErrLLM, http.StatusBadGateway, ErrorResponseCodeLLMError),
}

func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := requestLogger(r, s.logger)
	for _, h := range defaultErrorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
