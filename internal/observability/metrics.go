package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Message results recorded by ObserveMessage.
const (
	ResultPublished = "published"
	ResultReceived  = "received"
	ResultDropped   = "dropped"
	ResultError     = "error"
)

// ConstellationCollector bundles Prometheus metrics for the simulator and
// provides helpers to wire them into gRPC servers and HTTP handlers. It
// satisfies core.MetricsRecorder.
type ConstellationCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	FiresTracked   prometheus.Gauge
	FiresDetected  prometheus.Counter
	FiresReported  prometheus.Counter
	GroundStations prometheus.Gauge
	TickDuration   prometheus.Histogram
	SimTime        prometheus.Gauge
	StepFailures   prometheus.Counter
	Unavailable    *prometheus.CounterVec
	Messages       *prometheus.CounterVec
}

// NewConstellationCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewConstellationCollector(reg prometheus.Registerer) (*ConstellationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firesat_rpc_requests_total",
		Help: "Total number of handled gRPC requests, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "firesat_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firesat_rpc_request_duration_seconds",
		Help:    "gRPC request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"})
	durations, err = registerHistogramVec(reg, durations, "firesat_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	tracked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firesat_fires_tracked",
		Help: "Current number of fires tracked by the constellation.",
	}), "firesat_fires_tracked")
	if err != nil {
		return nil, err
	}
	detected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "firesat_fires_detected_total",
		Help: "Number of fires announced as detected.",
	}), "firesat_fires_detected_total")
	if err != nil {
		return nil, err
	}
	reported, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "firesat_fires_reported_total",
		Help: "Number of fires announced as reported to a ground station.",
	}), "firesat_fires_reported_total")
	if err != nil {
		return nil, err
	}
	grounds, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firesat_ground_stations",
		Help: "Current number of known ground stations.",
	}), "firesat_ground_stations")
	if err != nil {
		return nil, err
	}
	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "firesat_tick_duration_seconds",
		Help:    "Wall-clock duration of constellation ticks.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "firesat_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firesat_simulation_time_seconds",
		Help: "Current simulation time as a Unix timestamp.",
	}), "firesat_simulation_time_seconds")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "firesat_step_failures_total",
		Help: "Number of simulation steps abandoned because a tick failed.",
	}), "firesat_step_failures_total")
	if err != nil {
		return nil, err
	}
	unavailable, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firesat_satellite_unavailable_total",
		Help: "Steps a satellite sat out because its position could not be propagated.",
	}, []string{"satellite"}), "firesat_satellite_unavailable_total")
	if err != nil {
		return nil, err
	}
	messages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firesat_messages_total",
		Help: "Bus messages handled, labeled by topic and result.",
	}, []string{"topic", "result"}), "firesat_messages_total")
	if err != nil {
		return nil, err
	}

	return &ConstellationCollector{
		gatherer:       gatherer,
		RPCRequests:    requests,
		RPCDurations:   durations,
		FiresTracked:   tracked,
		FiresDetected:  detected,
		FiresReported:  reported,
		GroundStations: grounds,
		TickDuration:   tick,
		SimTime:        simTime,
		StepFailures:   failures,
		Unavailable:    unavailable,
		Messages:       messages,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *ConstellationCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ConstellationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ConstellationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *ConstellationCollector) SetFiresTracked(n int) {
	if c == nil || c.FiresTracked == nil {
		return
	}
	c.FiresTracked.Set(float64(n))
}

func (c *ConstellationCollector) IncFiresDetected() {
	if c == nil || c.FiresDetected == nil {
		return
	}
	c.FiresDetected.Inc()
}

func (c *ConstellationCollector) IncFiresReported() {
	if c == nil || c.FiresReported == nil {
		return
	}
	c.FiresReported.Inc()
}

func (c *ConstellationCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func (c *ConstellationCollector) SetSimTime(t time.Time) {
	if c == nil || c.SimTime == nil {
		return
	}
	c.SimTime.Set(float64(t.UnixNano()) / 1e9)
}

// SetGroundStations updates the ground station gauge.
func (c *ConstellationCollector) SetGroundStations(n int) {
	if c == nil || c.GroundStations == nil {
		return
	}
	c.GroundStations.Set(float64(n))
}

// IncStepFailures counts an abandoned simulation step.
func (c *ConstellationCollector) IncStepFailures() {
	if c == nil || c.StepFailures == nil {
		return
	}
	c.StepFailures.Inc()
}

// IncSatelliteUnavailable counts a step the named satellite sat out.
func (c *ConstellationCollector) IncSatelliteUnavailable(satellite string) {
	if c == nil || c.Unavailable == nil {
		return
	}
	c.Unavailable.WithLabelValues(satellite).Inc()
}

// ObserveMessage counts one bus message for topic with the given result.
func (c *ConstellationCollector) ObserveMessage(topic, result string) {
	if c == nil || c.Messages == nil {
		return
	}
	c.Messages.WithLabelValues(topic, result).Inc()
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
