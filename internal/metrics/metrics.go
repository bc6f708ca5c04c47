package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_orders_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custom_orders_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_orders_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	resourceQuantity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custom_orders_resource_quantity",
			Help: "Last observed quantity of a ledger resource",
		},
		[]string{"type", "name"},
	)

	lowStockAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custom_orders_low_stock_alerts_total",
			Help: "Number of low stock alerts raised",
		},
		[]string{"type", "name"},
	)
)

// Middleware records request count and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		status := strconv.Itoa(code)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func SetResourceQuantity(typ, name string, qty int) {
	resourceQuantity.WithLabelValues(typ, name).Set(float64(qty))
}

func RecordLowStock(typ, name string) {
	lowStockAlerts.WithLabelValues(typ, name).Inc()
}
