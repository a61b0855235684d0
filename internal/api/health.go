package api

import (
	"log"
	"net/http"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type healthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
}

// handleHealth reports liveness plus coarse host readings. Gauge
// failures are logged and zeroed, never turned into a non-healthy
// response; the endpoint answering at all is the health signal.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Status:  "healthy",
		Service: "robosim-backend",
	}

	if percents, err := cpu.Percent(0, false); err != nil {
		log.Printf("api: cpu reading failed: %v", err)
	} else if len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Printf("api: memory reading failed: %v", err)
	} else {
		resp.MemoryPercent = vm.UsedPercent
	}
	if up, err := host.Uptime(); err != nil {
		log.Printf("api: uptime reading failed: %v", err)
	} else {
		resp.UptimeSeconds = up
	}

	writeJSON(w, http.StatusOK, resp)
}
