package main

import (
	"encoding/json"
	"net/http"

	"github.com/yunbug/forward-optimal/internal/metrics"
	"github.com/yunbug/forward-optimal/internal/state"
)

func setupRouter(collector *metrics.Collector, cell *state.Cell) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", healthzHandler(cell))

	return mux
}

// healthzHandler reports 200 with the current winner while one is known,
// 503 before the first successful probing round.
func healthzHandler(cell *state.Cell) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		best, ok := cell.Snapshot()
		if !ok {
			http.Error(w, "no best target", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"best":     best.Name,
			"addr":     best.Addr.String(),
			"score_ms": best.Score.Milliseconds(),
		})
	}
}
