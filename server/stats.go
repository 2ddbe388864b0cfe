package server

import (
	"net/http"
	"time"
)

// StatsResponse represents server statistics
type StatsResponse struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Stored        int    `json:"stored"`
	MaxRequests   int    `json:"max_reqs"`
	LastID        uint64 `json:"last_id"`
	Viewers       int    `json:"viewers"`
}

func (s *Server) getStats(r *http.Request) (StatsResponse, error) {
	stored, err := s.store.Count(r.Context())
	if err != nil {
		return StatsResponse{}, err
	}

	uptime := time.Since(s.startedAt)
	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Stored:        stored,
		MaxRequests:   s.store.MaxRequests(),
		LastID:        s.store.LastID(),
	}
	if s.dashboard != nil {
		resp.Viewers = s.dashboard.Viewers()
	}
	return resp, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.getStats(r)
	if err != nil {
		s.logger.Error("failed to compute stats", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
