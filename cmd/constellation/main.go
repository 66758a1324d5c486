// Command constellation runs the FireSat constellation simulator: it steps
// the satellites through simulation time, detects and reports fires, and
// exchanges events with the other applications over the message bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/firesat/internal/config"
	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/internal/observability"
)

// overrides are command-line values that win over the config file and the
// environment when set.
type overrides struct {
	bus         string
	metricsAddr string
	grpcAddr    string
	httpAddr    string
	duration    time.Duration
	geojson     string
}

func (o overrides) apply(cfg *config.Config) {
	if o.bus != "" {
		cfg.Bus = o.bus
	}
	if o.metricsAddr != "" {
		cfg.Listen.Metrics = o.metricsAddr
	}
	if o.grpcAddr != "" {
		cfg.Listen.GRPC = o.grpcAddr
	}
	if o.httpAddr != "" {
		cfg.Listen.HTTP = o.httpAddr
	}
	if o.duration > 0 {
		cfg.Simulation.Duration = o.duration
	}
	if o.geojson != "" {
		cfg.GeoJSONFile = o.geojson
	}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	var o overrides
	flag.StringVar(&o.bus, "bus", "", "message bus: nats or memory")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	flag.StringVar(&o.grpcAddr, "grpc-addr", "", "TCP address for the gRPC health service")
	flag.StringVar(&o.httpAddr, "http-addr", "", "HTTP address for the fire scoreboard")
	flag.DurationVar(&o.duration, "duration", 0, "simulated duration to run")
	flag.StringVar(&o.geojson, "geojson", "", "write every footprint to this GeoJSON file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "simulator failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	bus, err := openBus(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn(context.Background(), "closing message bus", logging.Err(err))
		}
	}()

	a, err := newApp(ctx, cfg, bus, nil, log)
	if err != nil {
		return err
	}
	defer a.close()

	var (
		grpcSrv *grpc.Server
		hs      *health.Server
	)
	if cfg.Listen.GRPC != "" {
		lis, err := net.Listen("tcp", cfg.Listen.GRPC)
		if err != nil {
			return fmt.Errorf("listen for gRPC on %s: %w", cfg.Listen.GRPC, err)
		}
		grpcSrv, hs = serveGRPC(lis, a.collector, log)
	}
	metricsSrv := serveMetrics(cfg.Listen.Metrics, a.collector, log)
	boardSrv := serveScoreboard(cfg.Listen.HTTP, a.board, a.hub, log)

	runErr := a.run(ctx)

	log.Info(context.Background(), "shutting down",
		logging.Time("sim_time", a.engine.Now()),
		logging.Int("fires", len(a.constellation.Fires())),
	)
	if grpcSrv != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcSrv.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownHTTP(shutdownCtx, boardSrv)
	shutdownHTTP(shutdownCtx, metricsSrv)
	return runErr
}

func openBus(cfg config.Config, log logging.Logger) (messaging.Bus, error) {
	switch cfg.Bus {
	case config.BusMemory:
		log.Info(context.Background(), "using in-process message bus")
		return messaging.NewMemoryBus(), nil
	default:
		return messaging.ConnectNATS(cfg.NATS, log.With(logging.String("component", "nats")))
	}
}
