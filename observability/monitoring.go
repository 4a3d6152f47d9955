package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats is the payload served by the health endpoint.
type MonitoringStats struct {
	// --- RELAY METRICS ---
	Rooms            int    `json:"rooms"`
	Connections      int    `json:"connections"`
	Joined           uint64 `json:"joined"`
	Rejected         uint64 `json:"rejected"`
	Left             uint64 `json:"left"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesIgnored    uint64 `json:"frames_ignored"`
	EventsRouted     uint64 `json:"events_routed"`
	Deliveries       uint64 `json:"deliveries"`
	DeliveryFailures uint64 `json:"delivery_failures"`

	// --- SYSTEM METRICS ---
	CpuPercent float64 `json:"cpu_percent"`
	RssBytes   uint64  `json:"rss_bytes"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	UpdatedAt  string  `json:"updated_at"`
}

// MonitoringManager keeps relay counters and the latest sampled system stats.
// Counters are updated lock-free on the hot path.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	joined           uint64
	rejected         uint64
	left             uint64
	framesReceived   uint64
	framesIgnored    uint64
	eventsRouted     uint64
	deliveries       uint64
	deliveryFailures uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrJoined()         { atomic.AddUint64(&mm.joined, 1) }
func (mm *MonitoringManager) IncrRejected()       { atomic.AddUint64(&mm.rejected, 1) }
func (mm *MonitoringManager) IncrLeft()           { atomic.AddUint64(&mm.left, 1) }
func (mm *MonitoringManager) IncrFramesReceived() { atomic.AddUint64(&mm.framesReceived, 1) }
func (mm *MonitoringManager) IncrFramesIgnored()  { atomic.AddUint64(&mm.framesIgnored, 1) }
func (mm *MonitoringManager) IncrEventsRouted()   { atomic.AddUint64(&mm.eventsRouted, 1) }

func (mm *MonitoringManager) AddDeliveries(delivered, failed int) {
	atomic.AddUint64(&mm.deliveries, uint64(delivered))
	atomic.AddUint64(&mm.deliveryFailures, uint64(failed))
}

// UpdateSystem records a sample taken by the health worker.
func (mm *MonitoringManager) UpdateSystem(rooms, connections int, cpuPercent float64, rssBytes uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.Rooms = rooms
	mm.latestStats.Connections = connections
	mm.latestStats.CpuPercent = cpuPercent
	mm.latestStats.RssBytes = rssBytes
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()
	mm.latestStats.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	mm.log.Debug("Stats updated",
		"rooms", rooms,
		"connections", connections,
		"cpu_percent", cpuPercent,
		"mem_mb", mm.latestStats.AllocMemMb)
}

// GetLatest merges the live counters into the last system sample.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.latestStats
	mm.mu.RUnlock()

	stats.Joined = atomic.LoadUint64(&mm.joined)
	stats.Rejected = atomic.LoadUint64(&mm.rejected)
	stats.Left = atomic.LoadUint64(&mm.left)
	stats.FramesReceived = atomic.LoadUint64(&mm.framesReceived)
	stats.FramesIgnored = atomic.LoadUint64(&mm.framesIgnored)
	stats.EventsRouted = atomic.LoadUint64(&mm.eventsRouted)
	stats.Deliveries = atomic.LoadUint64(&mm.deliveries)
	stats.DeliveryFailures = atomic.LoadUint64(&mm.deliveryFailures)
	return stats
}
