package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/firesat/core"
	"github.com/signalsfoundry/firesat/internal/config"
	"github.com/signalsfoundry/firesat/internal/geojson"
	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/internal/observability"
	"github.com/signalsfoundry/firesat/internal/scenario"
	"github.com/signalsfoundry/firesat/internal/scoreboard"
	"github.com/signalsfoundry/firesat/internal/tle"
	"github.com/signalsfoundry/firesat/kb"
	"github.com/signalsfoundry/firesat/model"
	"github.com/signalsfoundry/firesat/timectrl"
)

// app is one fully wired simulator run.
type app struct {
	cfg config.Config
	log logging.Logger

	collector     *observability.ConstellationCollector
	constellation *core.Constellation
	engine        *core.SimulationEngine
	controller    *timectrl.TimeController
	publisher     *messaging.Publisher
	inbound       *messaging.Inbound
	board         *scoreboard.Board
	hub           *scoreboard.Hub
	recorder      *geojson.Recorder
	grounds       []model.GroundLocation

	unsubscribeGrounds func()
}

func newApp(ctx context.Context, cfg config.Config, bus messaging.Bus, reg prometheus.Registerer, log logging.Logger) (*app, error) {
	collector, err := observability.NewConstellationCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics collector: %w", err)
	}

	catalog := tle.NewCatalog(nil)
	if cfg.TLEFile != "" {
		if catalog, err = tle.LoadFile(cfg.TLEFile, log); err != nil {
			return nil, err
		}
	}
	defs, err := cfg.SatelliteDefinitions(catalog)
	if err != nil {
		return nil, err
	}
	sats := make([]*core.Satellite, 0, len(defs))
	for _, def := range defs {
		sat, err := core.NewSatellite(def)
		if err != nil {
			return nil, fmt.Errorf("satellite %q: %w", def.Name, err)
		}
		sats = append(sats, sat)
	}

	registry := kb.NewGroundRegistry()
	unsubscribe := registry.Subscribe(func(evt kb.Event) {
		collector.SetGroundStations(evt.Count)
	})

	constellation, err := core.NewConstellation(sats, registry,
		core.WithLogger(log.With(logging.String("component", "constellation"))),
		core.WithMetricsRecorder(collector),
	)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	start := cfg.StartTime(time.Now())
	sim := core.NewSimContext(start)
	engine := core.NewSimulationEngine(constellation, sim)
	if err := engine.Initialize(ctx, start); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("initialize constellation: %w", err)
	}

	a := &app{
		cfg:                cfg,
		log:                log,
		collector:          collector,
		constellation:      constellation,
		engine:             engine,
		hub:                scoreboard.NewHub(log.With(logging.String("component", "feed"))),
		unsubscribeGrounds: unsubscribe,
	}

	topics := messaging.NewTopics(cfg.Prefix)
	a.publisher = messaging.NewPublisher(bus, topics, log.With(logging.String("component", "publisher")), collector)
	engine.AddListener(a.publisher)

	sinks := core.StatusSinks{a.publisher}
	if cfg.GeoJSONFile != "" {
		a.recorder = geojson.NewRecorder(cfg.GeoJSONFile)
		sinks = append(sinks, a.recorder)
	}
	status := core.NewStatusPublisher(constellation, sinks, cfg.Simulation.StatusInterval, log)
	engine.RegisterTockHook(status.OnTock)

	var fires []model.FireStarted
	if cfg.FiresFile != "" {
		if fires, err = scenario.LoadFiresFile(cfg.FiresFile); err != nil {
			a.close()
			return nil, err
		}
	}
	schedule := scenario.NewFireSchedule(fires, a.publisher, log.With(logging.String("component", "scenario")))
	engine.RegisterTockHook(schedule.OnTock)

	if cfg.GroundsFile != "" {
		if a.grounds, err = scenario.LoadGroundsFile(cfg.GroundsFile); err != nil {
			a.close()
			return nil, err
		}
	}

	a.board = scoreboard.New(fires, a.hub, log.With(logging.String("component", "scoreboard")))
	if err := a.board.Subscribe(bus, topics); err != nil {
		a.close()
		return nil, fmt.Errorf("subscribe scoreboard: %w", err)
	}

	mode := timectrl.RealTime
	if cfg.Simulation.TimeScale == 0 {
		mode = timectrl.Accelerated
	}
	a.controller = timectrl.NewTimeController(engine, cfg.Simulation.TimeStep, mode,
		timectrl.WithLogger(log.With(logging.String("component", "timectrl"))),
		timectrl.WithTimeScale(cfg.Simulation.TimeScale),
		timectrl.WithStepErrorHandler(func(error) { collector.IncStepFailures() }),
	)

	a.inbound = messaging.NewInbound(bus, topics, a.controller, constellation, log.With(logging.String("component", "inbound")), collector)
	if err := a.inbound.Start(); err != nil {
		a.close()
		return nil, fmt.Errorf("subscribe inbound: %w", err)
	}
	return a, nil
}

// run announces the ground stations and drives the simulation for the
// configured duration.
func (a *app) run(ctx context.Context) error {
	if err := scenario.PublishGrounds(ctx, a.grounds, a.publisher, a.log); err != nil {
		return err
	}

	a.log.Info(ctx, "starting simulation",
		logging.Time("start", a.engine.Now()),
		logging.Duration("duration", a.cfg.Simulation.Duration),
		logging.Duration("step", a.cfg.Simulation.TimeStep),
		logging.Int("satellites", len(a.constellation.Satellites())),
	)
	err := a.controller.Run(ctx, a.cfg.Simulation.Duration)

	if a.recorder != nil {
		if ferr := a.recorder.Flush(); ferr != nil {
			a.log.Warn(ctx, "failed to write footprints", logging.Err(ferr))
		} else {
			a.log.Info(ctx, "wrote footprints",
				logging.String("path", a.cfg.GeoJSONFile),
				logging.Int("count", a.recorder.Len()),
			)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) close() {
	if a.inbound != nil {
		if err := a.inbound.Stop(); err != nil {
			a.log.Warn(context.Background(), "inbound unsubscribe failed", logging.Err(err))
		}
	}
	if a.board != nil {
		if err := a.board.Close(); err != nil {
			a.log.Warn(context.Background(), "scoreboard unsubscribe failed", logging.Err(err))
		}
	}
	a.hub.Close()
	a.unsubscribeGrounds()
}

func serveMetrics(addr string, collector *observability.ConstellationCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return serveHTTP(addr, mux, "metrics", log)
}

func serveScoreboard(addr string, board *scoreboard.Board, hub *scoreboard.Hub, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	return serveHTTP(addr, scoreboard.Handler(board, hub), "scoreboard", log)
}

func serveHTTP(addr string, h http.Handler, name string, log logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), name+" server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving "+name, logging.String("addr", addr))
	return srv
}

// serveGRPC exposes the standard health service on lis so orchestrators
// can probe the simulator.
func serveGRPC(lis net.Listener, collector *observability.ConstellationCollector, log logging.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			observability.RequestIDUnaryServerInterceptor(log),
			observability.SpanAttributesUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	log.Info(context.Background(), "starting gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(context.Background(), "gRPC server exited", logging.Err(err))
		}
	}()
	return server, hs
}

func shutdownHTTP(ctx context.Context, srv *http.Server) {
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
}
