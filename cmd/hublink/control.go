package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleethub/hublink/internal/history"
	"github.com/fleethub/hublink/internal/job"
)

// startControlServer exposes a local HTTP surface for the dashboard process:
// current status, the latest snapshot, chart history and the explicit
// record-prepare trigger. It binds to loopback by default and is not an
// external API.
func startControlServer(addr string, tracker *job.Tracker, hist *history.Buffer) {
	server := &http.Server{
		Addr:         addr,
		Handler:      controlMux(tracker, hist),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		Logger.Info("Control endpoint listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Logger.Error("Control endpoint failed", "error", err)
		}
	}()
}

func controlMux(tracker *job.Tracker, hist *history.Buffer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, monitorService.GetProgramStatus())
	})

	mux.HandleFunc("GET /snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, connManager.Snapshot())
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hist.Samples())
	})

	mux.HandleFunc("POST /deliveries/prepare", func(w http.ResponseWriter, r *http.Request) {
		record := tracker.Prepare()
		if record == nil {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "no active job to prepare a record from",
			})
			return
		}
		writeJSON(w, http.StatusCreated, record)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}
