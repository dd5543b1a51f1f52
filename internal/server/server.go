package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/parcelforge/fulfillment/internal/graphql"
	"github.com/parcelforge/fulfillment/internal/graphql/generated"
	"github.com/parcelforge/fulfillment/internal/telemetry"
	"github.com/parcelforge/fulfillment/internal/webhook"
)

// Server is the HTTP server for the fulfillment service.
type Server struct {
	port       int
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
	resolver   *graphql.Resolver
	dispatcher *webhook.Dispatcher
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, resolver *graphql.Resolver, dispatcher *webhook.Dispatcher, metrics *telemetry.Metrics, logger *otelzap.Logger) *Server {
	return &Server{
		port:       cfg.Port,
		logger:     logger,
		metrics:    metrics,
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Operational GraphQL endpoint
	mux.HandleFunc("/graphql", s.handleGraphQL)

	// Inbound provider events
	mux.HandleFunc("/webhooks/carrier", s.handleWebhook)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWebhook verifies and dispatches one provider event. Handler failures
// are isolated inside the dispatcher; only signature and parse failures turn
// into non-200 responses, so the provider retries exactly those.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = s.dispatcher.Dispatch(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	s.metrics.RecordDuration("webhook", time.Since(start).Seconds())
	if err != nil {
		if err == webhook.ErrBadSignature {
			s.logger.Ctx(r.Context()).Warn("Webhook signature rejected")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.logger.Ctx(r.Context()).Warn("Webhook body rejected", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GraphQL request/response types
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   interface{}    `json:"data,omitempty"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(graphQLResponse{
			Errors: []graphQLError{{Message: "Method not allowed, use POST"}},
		})
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(graphQLResponse{
			Errors: []graphQLError{{Message: "Invalid JSON: " + err.Error()}},
		})
		return
	}

	ctx := r.Context()
	start := time.Now()

	// Simple query router based on operation
	var response interface{}
	var err error

	switch {
	case containsQuery(req.Query, "health"):
		health, _ := s.resolver.Query().Health(ctx)
		response = map[string]interface{}{"health": health}

	case containsQuery(req.Query, "fulfillment") && !containsQuery(req.Query, "forge_"):
		id, _ := req.Variables["id"].(string)
		var f *generated.Fulfillment
		f, err = s.resolver.Query().Fulfillment(ctx, id)
		response = map[string]interface{}{"fulfillment": f}

	case containsQuery(req.Query, "pickup") && !containsQuery(req.Query, "forge_"):
		id, _ := req.Variables["id"].(string)
		var p *generated.Pickup
		p, err = s.resolver.Query().Pickup(ctx, id)
		response = map[string]interface{}{"pickup": p}

	case containsQuery(req.Query, "forge_create_fulfillment"):
		var input generated.CreateFulfillmentInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.TransitionResult
		result, err = s.resolver.Mutation().ForgeCreateFulfillment(ctx, input)
		response = map[string]interface{}{"forge_create_fulfillment": result}

	case containsQuery(req.Query, "forge_transition_fulfillment"):
		var input generated.TransitionFulfillmentInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.TransitionResult
		result, err = s.resolver.Mutation().ForgeTransitionFulfillment(ctx, input)
		response = map[string]interface{}{"forge_transition_fulfillment": result}

	case containsQuery(req.Query, "forge_quote_order"):
		var input generated.QuoteOrderInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var quotes []*generated.CarrierQuote
		quotes, err = s.resolver.Mutation().ForgeQuoteOrder(ctx, input)
		response = map[string]interface{}{"forge_quote_order": quotes}

	case containsQuery(req.Query, "forge_assign_pickup"):
		var input generated.AssignPickupInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.AssignPickupResult
		result, err = s.resolver.Mutation().ForgeAssignPickup(ctx, input)
		response = map[string]interface{}{"forge_assign_pickup": result}

	case containsQuery(req.Query, "forge_remove_from_pickup"):
		var input generated.RemoveFromPickupInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.Pickup
		result, err = s.resolver.Mutation().ForgeRemoveFromPickup(ctx, input)
		response = map[string]interface{}{"forge_remove_from_pickup": result}

	case containsQuery(req.Query, "forge_close_pickup"):
		var input generated.ClosePickupInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.Pickup
		result, err = s.resolver.Mutation().ForgeClosePickup(ctx, input)
		response = map[string]interface{}{"forge_close_pickup": result}

	case containsQuery(req.Query, "forge_convert_labels"):
		var input generated.ConvertLabelsInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result []*generated.LabelResult
		result, err = s.resolver.Mutation().ForgeConvertLabels(ctx, input)
		response = map[string]interface{}{"forge_convert_labels": result}

	case containsQuery(req.Query, "forge_schedule_pickup"):
		var input generated.SchedulePickupInput
		if err := decodeInput(req.Variables, &input); err != nil {
			writeBadInput(w, err)
			return
		}
		var result *generated.Pickup
		result, err = s.resolver.Mutation().ForgeSchedulePickup(ctx, input)
		response = map[string]interface{}{"forge_schedule_pickup": result}

	default:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(graphQLResponse{
			Errors: []graphQLError{{Message: "Unknown operation"}},
		})
		return
	}

	s.metrics.RecordDuration("graphql", time.Since(start).Seconds())

	if err != nil {
		json.NewEncoder(w).Encode(graphQLResponse{
			Errors: []graphQLError{{Message: err.Error()}},
		})
		return
	}

	json.NewEncoder(w).Encode(graphQLResponse{Data: response})
}

func writeBadInput(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(graphQLResponse{
		Errors: []graphQLError{{Message: err.Error()}},
	})
}

// decodeInput round-trips the "input" variable through JSON into the typed
// input struct.
func decodeInput(vars map[string]interface{}, out interface{}) error {
	inputData, ok := vars["input"]
	if !ok {
		return fmt.Errorf("missing 'input' variable")
	}
	raw, err := json.Marshal(inputData)
	if err != nil {
		return fmt.Errorf("invalid 'input' variable: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid 'input' variable: %w", err)
	}
	return nil
}

func containsQuery(query, operation string) bool {
	return len(query) > 0 && (contains(query, operation) || contains(query, camelCase(operation)))
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func camelCase(s string) string {
	// Simple conversion: forge_quote_order -> forgeQuoteOrder
	result := make([]byte, 0, len(s))
	capitalizeNext := false
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			capitalizeNext = true
			continue
		}
		if capitalizeNext && s[i] >= 'a' && s[i] <= 'z' {
			result = append(result, s[i]-32)
			capitalizeNext = false
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}
