package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/firesat/internal/config"
	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/internal/observability"
	"github.com/signalsfoundry/firesat/model"
)

var t0 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

// testConfig parks one satellite over the equator with a fire one degree
// east and an operational ground station two degrees east.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	fires := filepath.Join(dir, "fires.csv")
	grounds := filepath.Join(dir, "grounds.csv")
	writeFile(t, fires, "fireId,start_time,latitude,longitude\n1,2025-07-01T12:00:00Z,0,1\n2,2025-07-01T18:00:00Z,0,90\n")
	writeFile(t, grounds, "groundId,latitude,longitude,elevAngle,operational\n7,0,2,10,true\n")

	cfg := config.Default()
	cfg.Bus = config.BusMemory
	cfg.Listen = config.ListenConfig{}
	cfg.FiresFile = fires
	cfg.GroundsFile = grounds
	cfg.GeoJSONFile = filepath.Join(dir, "footprints.geojson")
	cfg.Simulation = config.SimulationConfig{
		Start:          t0,
		Duration:       5 * time.Minute,
		TimeStep:       time.Minute,
		StatusInterval: time.Minute,
	}
	cfg.Satellites = []config.SatelliteConfig{{
		Name:          "FireSat-1",
		NoradID:       90001,
		FieldOfRegard: 100,
		Position:      &model.GeographicPosition{Altitude: 500000},
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAppDetectsAndReportsScenarioFire(t *testing.T) {
	cfg := testConfig(t)
	bus := messaging.NewMemoryBus()
	defer bus.Close()

	var detected []model.FireDetected
	topics := messaging.NewTopics(cfg.Prefix)
	if _, err := bus.Subscribe(topics.Detected(), func(_ context.Context, m messaging.Message) {
		var evt model.FireDetected
		if err := m.Decode(&evt); err == nil {
			detected = append(detected, evt)
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, bus, prometheus.NewRegistry(), logging.Noop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !a.engine.Now().Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("sim time = %v", a.engine.Now())
	}
	if a.constellation.Grounds().Len() != 1 {
		t.Fatalf("ground stations = %d, want 1", a.constellation.Grounds().Len())
	}
	// Fire 2 ignites after the run ends.
	if got := len(a.constellation.Fires()); got != 1 {
		t.Fatalf("tracked fires = %d, want 1", got)
	}
	if len(detected) != 1 || detected[0].FireID != 1 || detected[0].DetectedBy != "FireSat-1" {
		t.Fatalf("detected events = %+v", detected)
	}

	entry, ok := a.board.Entry(1)
	if !ok || entry.State != model.FireStateReported || entry.ReportedTo == nil || *entry.ReportedTo != 7 {
		t.Fatalf("scoreboard entry = %+v", entry)
	}
	if e, _ := a.board.Entry(2); e.State != model.FireStateUndefined {
		t.Fatalf("fire 2 state = %v", e.State)
	}
	if len(a.board.Footprints()) != 1 {
		t.Fatalf("footprints = %+v", a.board.Footprints())
	}

	data, err := os.ReadFile(cfg.GeoJSONFile)
	if err != nil {
		t.Fatalf("read footprints: %v", err)
	}
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatalf("decode footprints: %v", err)
	}
	// One status per tock.
	if len(fc.Features) != 5 {
		t.Fatalf("recorded %d footprints, want 5", len(fc.Features))
	}
}

func TestAppRejectsUnknownCatalogueEntry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Satellites[0].Position = nil
	cfg.TLEFile = filepath.Join(t.TempDir(), "empty.tle")
	writeFile(t, cfg.TLEFile, "")

	if _, err := newApp(context.Background(), cfg, messaging.NewMemoryBus(), prometheus.NewRegistry(), logging.Noop()); err == nil {
		t.Fatalf("expected error for satellite missing from the catalogue")
	}
}

func TestGRPCHealthSmoke(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	collector, err := observability.NewConstellationCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	server, hs := serveGRPC(lis, collector, logging.Noop())
	defer server.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after shutdown status = %v, %v", resp.GetStatus(), err)
	}
}

func TestOverridesApply(t *testing.T) {
	cfg := config.Default()
	overrides{bus: "memory", httpAddr: ":0", duration: time.Hour, geojson: "out.geojson"}.apply(&cfg)
	if cfg.Bus != config.BusMemory || cfg.Listen.HTTP != ":0" || cfg.Simulation.Duration != time.Hour || cfg.GeoJSONFile != "out.geojson" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Listen.Metrics != ":9090" {
		t.Fatalf("unset override changed metrics addr: %q", cfg.Listen.Metrics)
	}
}
