package scoreboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/signalsfoundry/firesat/model"
)

// Summary is the body of GET /summary.
type Summary struct {
	Fires    int `json:"fires"`
	Started  int `json:"started"`
	Detected int `json:"detected"`
	Reported int `json:"reported"`
}

// Handler serves the scoreboard views:
//
//	GET /fires               all entries
//	GET /fires/{id}          one entry
//	GET /fires.geojson       fires as points
//	GET /footprints.geojson  latest footprint per satellite
//	GET /summary             counts per state
//	GET /ws                  live event feed
func Handler(b *Board, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/fires", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Entries())
	})
	mux.HandleFunc("/fires/", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/fires/"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fire id"})
			return
		}
		e, ok := b.Entry(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown fire"})
			return
		}
		writeJSON(w, http.StatusOK, e)
	})
	mux.HandleFunc("/fires.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, b.FiresCollection())
	})
	mux.HandleFunc("/footprints.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, b.FootprintsCollection())
	})
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		counts := b.Counts()
		total := 0
		for _, n := range counts {
			total += n
		}
		writeJSON(w, http.StatusOK, Summary{
			Fires:    total,
			Started:  counts[model.FireStateStarted],
			Detected: counts[model.FireStateDetected],
			Reported: counts[model.FireStateReported],
		})
	})
	if hub != nil {
		mux.Handle("/ws", hub)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, m json.Marshaler) {
	data, err := m.MarshalJSON()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}
