package bus

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// PoolMetrics is a point-in-time view of the worker pool and queue.
type PoolMetrics struct {
	WorkersTotal  int     `json:"workers_total"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// checkMemoryPressure warns when the configured worker count looks too
// high for the memory actually available. Advisory only; the pool still
// starts with whatever was configured.
func checkMemoryPressure(workers int) string {
	v, err := mem.VirtualMemory()
	if err != nil {
		return "" // can't check, assume OK
	}

	availableGB := float64(v.Available) / 1024 / 1024 / 1024
	totalGB := float64(v.Total) / 1024 / 1024 / 1024
	recommended := safeWorkerCount(availableGB)

	if workers > recommended {
		return fmt.Sprintf(
			"worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB)",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}

// safeWorkerCount recommends a worker count from available memory. Each
// worker holds at most one SQLite transaction plus one cascade in flight,
// so the per-worker footprint is small; the buffer keeps the host usable.
func safeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 0.25 // GB
	const memoryBuffer = 1.0     // GB reserved for the rest of the system

	if availableGB < memoryBuffer {
		return 1
	}
	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	if recommended < 1 {
		return 1
	}
	if recommended > 16 {
		return 16
	}
	return recommended
}
