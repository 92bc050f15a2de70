package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway *domain.GatewayService
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(gateway *domain.GatewayService) *Handler {
	return &Handler{
		gateway: gateway,
	}
}

// HandleCompletion processes completion requests. The target provider comes
// from the X-Provider header when set, otherwise it is routed by model.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Early validation.
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse request.
	var req domain.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		http.Error(w, "model not specified", http.StatusBadRequest)
		return
	}

	// Inject routing info into context for downstream logging.
	provider := r.Header.Get("X-Provider")
	if provider != "" {
		ctx = observability.WithProvider(ctx, provider)
	}
	ctx = observability.WithModel(ctx, req.Model)

	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		zap.String("provider", provider),
		zap.String("model", req.Model),
	)

	var (
		response *domain.CompletionResponse
		err      error
	)
	if provider != "" {
		response, err = h.gateway.Complete(ctx, provider, &req)
	} else {
		response, err = h.gateway.CompleteByModel(ctx, &req)
	}
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		http.Error(w, err.Error(), completionErrorStatus(err))
		return
	}

	logger.Info("completion succeeded",
		zap.Int("tokens", response.Usage.TotalTokens),
		zap.Float64("cost", response.Usage.Cost),
	)

	w.Header().Set("Content-Type", "application/json")
	encodeErr := json.NewEncoder(w).Encode(response)
	if encodeErr != nil {
		logger.Error("failed to encode response", zap.Error(encodeErr))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", encodeErr), http.StatusInternalServerError)
		return
	}
}

func completionErrorStatus(err error) int {
	if errors.Is(err, domain.ErrDispatcherClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// providerUsage is the wire shape of a single provider's token totals.
type providerUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// HandleUsage reports accumulated token usage per provider.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	totals, err := h.gateway.ProviderUsage(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("failed to collect usage", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body := make(map[string]providerUsage, len(totals))
	for name, usage := range totals {
		body[name] = providerUsage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.TotalTokens(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.FromContext(ctx).Error("failed to encode usage", zap.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}
