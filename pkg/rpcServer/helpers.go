package rpcServer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, &errorResponse{Error: message})
}

func (rpc *RpcServer) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	rpc.Logger.Sugar().Errorw("Request failed",
		zap.String("path", r.URL.Path),
		zap.String("requestId", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// instrument records request counts and latency labeled by route pattern, so path parameters do not
// explode label cardinality.
func (rpc *RpcServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		_ = rpc.metricsSink.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "route", Value: route},
			{Name: "status", Value: strconv.Itoa(status)},
		}, 1)
		_ = rpc.metricsSink.Timing(metricsTypes.Metric_Timing_HttpDuration, time.Since(start), []metricsTypes.MetricsLabel{
			{Name: "route", Value: route},
		})
		rpc.Logger.Sugar().Debugw("Handled request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type ReceiptResponse struct {
	ReceiptId            string    `json:"receipt_id"`
	UserId               string    `json:"user_id"`
	Source               string    `json:"source"`
	Type                 string    `json:"type"`
	Title                string    `json:"title"`
	Why                  string    `json:"why"`
	Next                 string    `json:"next"`
	AmountCents          int64     `json:"amount_cents"`
	SpendPowerDeltaCents int64     `json:"spend_power_delta_cents"`
	ExecId               string    `json:"exec_id,omitempty"`
	QuoteId              string    `json:"quote_id,omitempty"`
	TxHash               string    `json:"tx_hash,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func convertReceipt(r *storage.Receipt) *ReceiptResponse {
	return &ReceiptResponse{
		ReceiptId:            r.ReceiptId,
		UserId:               r.UserId,
		Source:               r.Source,
		Type:                 r.Type,
		Title:                r.Title,
		Why:                  r.Why,
		Next:                 r.Next,
		AmountCents:          r.AmountCents,
		SpendPowerDeltaCents: r.SpendPowerDeltaCents,
		ExecId:               r.ExecId,
		QuoteId:              r.QuoteId,
		TxHash:               r.TxHash,
		CreatedAt:            r.CreatedAt,
	}
}
