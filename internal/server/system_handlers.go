package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/watchtower/internal/database"
	"github.com/aristath/watchtower/internal/domain"
	"github.com/aristath/watchtower/internal/pipeline"
)

// SystemStatusResponse reports host load and the state of the last pass
type SystemStatusResponse struct {
	LastPass      *pipeline.Summary `json:"last_pass"`
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	MemoryUsedMB  uint64            `json:"memory_used_mb"`
	Subscribers   int               `json:"stream_subscribers"`
	Running       bool              `json:"pass_running"`
	Stale         bool              `json:"stale"`
}

// handleSystemStatus returns host metrics and the last pass outcome. Stored
// results are stale when the last pass aborted or no pass has run yet.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:      "healthy",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Running:     s.container.Runner.Running(),
		Subscribers: s.container.EventBus.Subscribers(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	} else if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPercent = memStat.UsedPercent
		resp.MemoryUsedMB = memStat.Used / 1024 / 1024
	} else {
		s.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	last, err := s.container.RunRepo.Latest(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		resp.Stale = true
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		resp.LastPass = last
		resp.Stale = last.Status == pipeline.StatusStale
	}
	if resp.Stale {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// DatabaseStats is the storage footprint of one database
type DatabaseStats struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Profile string `json:"profile"`
	database.Stats
}

// handleDatabaseStats returns file and page statistics of each database
func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	var out []DatabaseStats
	for _, db := range []*database.DB{s.container.MainDB, s.container.CacheDB} {
		stats, err := db.GetStats()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, DatabaseStats{Name: db.Name(), Path: db.Path(), Profile: string(db.Profile()), Stats: *stats})
	}
	s.writeJSON(w, http.StatusOK, out)
}
