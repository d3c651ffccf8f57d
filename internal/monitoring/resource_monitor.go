package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rama-kairi/devrunner/internal/config"
	"github.com/rama-kairi/devrunner/internal/logger"
)

// readersPerProcess is the number of output reader goroutines a tracked
// process keeps alive
const readersPerProcess = 2

// maxSamples bounds the metric history
const maxSamples = 1000

// ResourceMetrics holds one resource usage sample
type ResourceMetrics struct {
	Timestamp       time.Time `json:"timestamp"`
	Goroutines      int       `json:"goroutines"`
	MemoryAllocMB   uint64    `json:"memory_alloc_mb"`
	MemoryHeapInuse uint64    `json:"memory_heap_inuse_mb"`
	GCCount         uint32    `json:"gc_count"`
	Processes       int       `json:"processes"`
	OutputBytes     int       `json:"output_bytes"`
}

// Counters supplies the supervisor figures sampled with each measurement
type Counters interface {
	RunningCount() int
	BufferedBytes() int
}

// ResourceMonitor samples runtime and supervisor figures on an interval and
// logs suspected leaks
type ResourceMonitor struct {
	logger   *logger.Logger
	counters Counters
	config   config.MonitoringConfig

	mutex   sync.RWMutex
	metrics []ResourceMetrics
	stopCh  chan struct{}
	stopped sync.Once

	baselineGoroutines int
}

// NewResourceMonitor creates a monitor. The current goroutine count becomes
// the baseline.
func NewResourceMonitor(log *logger.Logger, counters Counters, cfg config.MonitoringConfig) *ResourceMonitor {
	return &ResourceMonitor{
		logger:             log.WithComponent("monitor"),
		counters:           counters,
		config:             cfg,
		metrics:            make([]ResourceMetrics, 0, 64),
		stopCh:             make(chan struct{}),
		baselineGoroutines: runtime.NumGoroutine(),
	}
}

// Start begins sampling until ctx is done or Stop is called
func (rm *ResourceMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.config.Interval)

	go func() {
		defer ticker.Stop()

		rm.recordMetrics()

		for {
			select {
			case <-ticker.C:
				rm.recordMetrics()
				rm.checkForLeaks()
			case <-rm.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	rm.logger.Info("Resource monitor started", map[string]interface{}{
		"interval":            rm.config.Interval.String(),
		"baseline_goroutines": rm.baselineGoroutines,
		"goroutine_threshold": rm.config.GoroutineThreshold,
		"output_threshold_mb": rm.config.OutputThresholdMB,
	})
}

// Stop ends sampling. Safe to call more than once.
func (rm *ResourceMonitor) Stop() {
	rm.stopped.Do(func() {
		close(rm.stopCh)
		rm.logger.Info("Resource monitor stopped")
	})
}

// recordMetrics captures current resource usage
func (rm *ResourceMonitor) recordMetrics() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metric := ResourceMetrics{
		Timestamp:       time.Now(),
		Goroutines:      runtime.NumGoroutine(),
		MemoryAllocMB:   m.Alloc / 1024 / 1024,
		MemoryHeapInuse: m.HeapInuse / 1024 / 1024,
		GCCount:         m.NumGC,
	}
	if rm.counters != nil {
		metric.Processes = rm.counters.RunningCount()
		metric.OutputBytes = rm.counters.BufferedBytes()
	}

	rm.mutex.Lock()
	rm.metrics = append(rm.metrics, metric)
	if len(rm.metrics) > maxSamples {
		rm.metrics = rm.metrics[1:]
	}
	rm.mutex.Unlock()

	return metric
}

// excessGoroutines is the growth over baseline not explained by reader
// goroutines of tracked processes
func (rm *ResourceMonitor) excessGoroutines(m ResourceMetrics) int {
	return m.Goroutines - rm.baselineGoroutines - readersPerProcess*m.Processes
}

func (rm *ResourceMonitor) outputExceeded(m ResourceMetrics) bool {
	return rm.config.OutputThresholdMB > 0 && m.OutputBytes > rm.config.OutputThresholdMB*1024*1024
}

// checkForLeaks logs a warning when the latest sample crosses a threshold
func (rm *ResourceMonitor) checkForLeaks() {
	current, ok := rm.latest()
	if !ok {
		return
	}

	if excess := rm.excessGoroutines(current); excess > rm.config.GoroutineThreshold {
		rm.logger.Warn("potential_goroutine_leak", map[string]interface{}{
			"current_goroutines":  current.Goroutines,
			"baseline_goroutines": rm.baselineGoroutines,
			"excess":              excess,
			"threshold":           rm.config.GoroutineThreshold,
			"processes":           current.Processes,
		})
	}

	if rm.outputExceeded(current) {
		rm.logger.Warn("large_output_buffers", map[string]interface{}{
			"output_bytes":    current.OutputBytes,
			"threshold_mb":    rm.config.OutputThresholdMB,
			"processes":       current.Processes,
			"memory_alloc_mb": current.MemoryAllocMB,
			"heap_inuse_mb":   current.MemoryHeapInuse,
		})
	}
}

func (rm *ResourceMonitor) latest() (ResourceMetrics, bool) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	if len(rm.metrics) == 0 {
		return ResourceMetrics{}, false
	}
	return rm.metrics[len(rm.metrics)-1], true
}

// GetCurrentMetrics returns the latest sample, or a zero value before the
// first one
func (rm *ResourceMonitor) GetCurrentMetrics() ResourceMetrics {
	m, _ := rm.latest()
	return m
}

// GetResourceSummary takes a fresh sample and returns it with the leak flags
func (rm *ResourceMonitor) GetResourceSummary() map[string]interface{} {
	current := rm.recordMetrics()
	excess := rm.excessGoroutines(current)

	return map[string]interface{}{
		"timestamp":                current.Timestamp.Format(time.RFC3339),
		"goroutines":               current.Goroutines,
		"baseline_goroutines":      rm.baselineGoroutines,
		"excess_goroutines":        excess,
		"memory_alloc_mb":          current.MemoryAllocMB,
		"memory_heap_inuse_mb":     current.MemoryHeapInuse,
		"gc_count":                 current.GCCount,
		"processes":                current.Processes,
		"output_bytes":             current.OutputBytes,
		"potential_goroutine_leak": excess > rm.config.GoroutineThreshold,
		"large_output_buffers":     rm.outputExceeded(current),
	}
}
