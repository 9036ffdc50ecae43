// Package api exposes the service's health and status endpoints. This
// is an operational surface, not a dashboard: two read-only routes.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/banshee-data/platewatch/internal/pipeline"
	"github.com/banshee-data/platewatch/internal/storage/sqlite"
	"github.com/banshee-data/platewatch/internal/version"
)

// Server serves /healthz and /api/status.
type Server struct {
	mux       *http.ServeMux
	pipelines []*pipeline.Pipeline
	store     *sqlite.Store
	started   time.Time
}

// New builds the status server over the given pipelines. store may be
// nil when archiving is disabled.
func New(pipelines []*pipeline.Pipeline, store *sqlite.Store) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		pipelines: pipelines,
		store:     store,
		started:   time.Now(),
	}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

type statusResponse struct {
	Version       string              `json:"version"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Cameras       []pipeline.Snapshot `json:"cameras"`
	Archive       *archiveStatus      `json:"archive,omitempty"`
}

type archiveStatus struct {
	Tracks   int64 `json:"tracks"`
	Captures int64 `json:"captures"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:       version.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Cameras:       make([]pipeline.Snapshot, 0, len(s.pipelines)),
	}
	for _, p := range s.pipelines {
		resp.Cameras = append(resp.Cameras, p.Snapshot())
	}
	if s.store != nil {
		tracks, captures, err := s.store.Counts()
		if err == nil {
			resp.Archive = &archiveStatus{Tracks: tracks, Captures: captures}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
