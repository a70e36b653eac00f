package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const serviceName = "readings-service"

// Telemetry bundles the prometheus registry, the otel providers and the
// instruments the service records into.
type Telemetry struct {
	Registry *prometheus.Registry
	Tracer   oteltrace.Tracer

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	patched  metric.Int64Counter

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup wires metrics and tracing. Spans are exported over OTLP/HTTP only
// when endpoint is set.
func Setup(ctx context.Context, endpoint string) (*Telemetry, error) {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		Registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readings_service_requests_total",
			Help: "Total requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readings_service_request_duration_seconds",
			Help:    "Request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(t.requests, t.duration)

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, err
	}

	promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	t.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(t.mp)
	t.patched, err = t.mp.Meter(serviceName).Int64Counter("readings_service.patch.records",
		metric.WithDescription("Records changed by patch requests."))
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	t.tp = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.tp)
	t.Tracer = t.tp.Tracer(serviceName)
	return t, nil
}

func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{})
}

// RecordPatch counts records changed by a patch of entity.property.
func (t *Telemetry) RecordPatch(ctx context.Context, entity, property string, affected int64) {
	if t == nil || t.patched == nil || affected <= 0 {
		return
	}
	t.patched.Add(ctx, affected, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("property", property),
	))
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}

// Middleware counts and traces each request under its chi route pattern.
func (t *Telemetry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := t.Tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rw.status),
		)
		t.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		t.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
