package scoreboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/model"
)

var t0 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type captureFeed struct{ events []Event }

func (c *captureFeed) Broadcast(evt Event) { c.events = append(c.events, evt) }

func scenarioFires() []model.FireStarted {
	return []model.FireStarted{
		{FireID: 1, Start: t0, Latitude: 38.5, Longitude: -121.2},
		{FireID: 2, Start: t0.Add(time.Hour), Latitude: 39.1, Longitude: -120.8},
	}
}

func TestBoardProgression(t *testing.T) {
	feed := &captureFeed{}
	b := New(scenarioFires(), feed, nil)

	if e, _ := b.Entry(1); e.State != model.FireStateUndefined {
		t.Fatalf("seeded state = %v", e.State)
	}
	if !b.Started(model.FireStarted{FireID: 1, Start: t0}) {
		t.Fatalf("Started did not apply")
	}
	if !b.Detected(model.FireDetected{FireID: 1, Detected: t0.Add(5 * time.Minute), DetectedBy: "FireSat-1"}) {
		t.Fatalf("Detected did not apply")
	}
	if !b.Reported(model.FireReported{FireID: 1, Reported: t0.Add(9 * time.Minute), ReportedBy: "FireSat-1", ReportedTo: 7}) {
		t.Fatalf("Reported did not apply")
	}

	e, ok := b.Entry(1)
	if !ok || e.State != model.FireStateReported {
		t.Fatalf("entry = %+v", e)
	}
	if e.DetectedBy != "FireSat-1" || e.Detected == nil || !e.Detected.Equal(t0.Add(5*time.Minute)) {
		t.Fatalf("detection fields = %+v", e)
	}
	if e.ReportedTo == nil || *e.ReportedTo != 7 {
		t.Fatalf("reported_to = %v", e.ReportedTo)
	}
	if len(feed.events) != 3 || feed.events[2].Type != EventReported {
		t.Fatalf("feed = %+v", feed.events)
	}
}

func TestBoardNeverMovesBackwards(t *testing.T) {
	b := New(scenarioFires(), nil, nil)
	b.Detected(model.FireDetected{FireID: 2, Detected: t0, DetectedBy: "A"})

	if b.Started(model.FireStarted{FireID: 2}) {
		t.Fatalf("late FireStarted moved a detected fire")
	}
	if b.Detected(model.FireDetected{FireID: 2, Detected: t0.Add(time.Minute), DetectedBy: "B"}) {
		t.Fatalf("second detection applied")
	}
	if e, _ := b.Entry(2); e.State != model.FireStateDetected || e.DetectedBy != "A" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestBoardIgnoresUnknownFires(t *testing.T) {
	feed := &captureFeed{}
	b := New(scenarioFires(), feed, nil)

	if b.Detected(model.FireDetected{FireID: 99, DetectedBy: "A"}) {
		t.Fatalf("unknown fire applied")
	}
	if _, ok := b.Entry(99); ok {
		t.Fatalf("unknown fire added to the board")
	}
	if len(feed.events) != 0 {
		t.Fatalf("unknown fire broadcast: %+v", feed.events)
	}
}

func TestBoardKeepsLatestFootprint(t *testing.T) {
	b := New(nil, nil, nil)
	b.Location(model.SatelliteStatus{ID: 1, Time: t0.Add(time.Minute), Latitude: 5})
	b.Location(model.SatelliteStatus{ID: 1, Time: t0, Latitude: 1})
	b.Location(model.SatelliteStatus{ID: 0, Time: t0})

	fps := b.Footprints()
	if len(fps) != 2 || fps[0].ID != 0 || fps[1].Latitude != 5 {
		t.Fatalf("footprints = %+v", fps)
	}
}

func TestBoardFollowsBus(t *testing.T) {
	bus := messaging.NewMemoryBus()
	topics := messaging.NewTopics("test")
	b := New(scenarioFires(), nil, nil)
	if err := b.Subscribe(bus, topics); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	pub := messaging.NewPublisher(bus, topics, nil, nil)
	ctx := context.Background()

	if err := pub.PublishFireStarted(ctx, model.FireStarted{FireID: 1, Start: t0}); err != nil {
		t.Fatalf("PublishFireStarted: %v", err)
	}
	pub.OnDetected(ctx, model.FireDetected{FireID: 1, Detected: t0, DetectedBy: "FireSat-2"})
	if err := pub.PublishStatus(ctx, model.SatelliteStatus{ID: 3, Time: t0, Radius: 1000}); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	// Undecodable payloads are dropped.
	if err := bus.Publish(ctx, topics.Reported(), "not an object"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if e, _ := b.Entry(1); e.State != model.FireStateDetected || e.DetectedBy != "FireSat-2" {
		t.Fatalf("entry = %+v", e)
	}
	if len(b.Footprints()) != 1 {
		t.Fatalf("footprints = %+v", b.Footprints())
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	pub.OnReported(ctx, model.FireReported{FireID: 1, Reported: t0, ReportedBy: "FireSat-2", ReportedTo: 1})
	if e, _ := b.Entry(1); e.State != model.FireStateDetected {
		t.Fatalf("closed board still updated: %+v", e)
	}
}

func TestHandlers(t *testing.T) {
	b := New(scenarioFires(), nil, nil)
	b.Started(model.FireStarted{FireID: 1})
	b.Location(model.SatelliteStatus{ID: 0, NoradID: 25544, Time: t0, Radius: 1e5})
	srv := httptest.NewServer(Handler(b, nil))
	defer srv.Close()

	get := func(path string, want int) []byte {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s status = %d, want %d", path, resp.StatusCode, want)
		}
		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			t.Fatalf("GET %s decode: %v", path, err)
		}
		return raw
	}

	var fires []map[string]any
	if err := json.Unmarshal(get("/fires", http.StatusOK), &fires); err != nil {
		t.Fatalf("fires: %v", err)
	}
	if len(fires) != 2 || fires[0]["state"] != "started" || fires[1]["state"] != "undefined" {
		t.Fatalf("fires = %+v", fires)
	}

	var one map[string]any
	_ = json.Unmarshal(get("/fires/2", http.StatusOK), &one)
	if one["fireId"] != float64(2) {
		t.Fatalf("fire 2 = %+v", one)
	}
	get("/fires/99", http.StatusNotFound)
	get("/fires/abc", http.StatusBadRequest)

	var summary Summary
	_ = json.Unmarshal(get("/summary", http.StatusOK), &summary)
	if summary != (Summary{Fires: 2, Started: 1}) {
		t.Fatalf("summary = %+v", summary)
	}

	var fc struct {
		Name     string            `json:"name"`
		Features []json.RawMessage `json:"features"`
	}
	_ = json.Unmarshal(get("/footprints.geojson", http.StatusOK), &fc)
	if fc.Name != "Constellation" || len(fc.Features) != 1 {
		t.Fatalf("footprints = %+v", fc)
	}
	if !strings.Contains(string(get("/fires.geojson", http.StatusOK)), `"Point"`) {
		t.Fatalf("fires.geojson has no points")
	}
}

func TestHubStreamsEvents(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	b := New(scenarioFires(), hub, nil)
	srv := httptest.NewServer(Handler(b, hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Started(model.FireStarted{FireID: 2})
	b.Detected(model.FireDetected{FireID: 2, Detected: t0, DetectedBy: "FireSat-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{EventStarted, EventDetected} {
		var evt struct {
			Type string         `json:"type"`
			Fire map[string]any `json:"fire"`
		}
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read: %v", err)
		}
		if evt.Type != want || evt.Fire["fireId"] != float64(2) {
			t.Fatalf("event = %+v, want %s for fire 2", evt, want)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	c := &client{send: make(chan Event)}
	hub.clients[c] = struct{}{}

	// Unbuffered and unread: the first broadcast evicts the client.
	hub.Broadcast(Event{Type: EventStarted})
	if hub.Clients() != 0 {
		t.Fatalf("slow client kept")
	}
	if _, ok := <-c.send; ok {
		t.Fatalf("send channel left open")
	}
	hub.Broadcast(Event{Type: EventDetected})
}
