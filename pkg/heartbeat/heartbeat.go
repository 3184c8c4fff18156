// Package heartbeat logs periodic process health for long-running agents.
// Each beat samples CPU, memory, goroutine counts, and record pool usage so
// leaks show up in logs long before the process falls over.
package heartbeat

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/inlethq/inlet/pkg/record"
)

// Usage contains resource usage information for one sample.
type Usage struct {
	CPUPercent          float64
	MemoryRSS           uint64
	SystemMemoryPercent float64
	GoroutineCount      int
	ThreadCount         int32
	OpenFDs             int32
}

// Monitor samples process resources on an interval and emits a status line
// through the supplied logger.
type Monitor struct {
	interval     time.Duration
	logger       *zap.Logger
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	sampling     bool
	samplingStop chan struct{}
	mu           sync.Mutex
}

// New creates a monitor that beats at the given interval.
func New(interval time.Duration, logger *zap.Logger) *Monitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	var startCPU float64
	if proc != nil {
		if cpuTime, err := proc.Times(); err == nil {
			startCPU = cpuTime.Total()
		}
	}

	return &Monitor{
		interval:     interval,
		logger:       logger,
		process:      proc,
		startCPUTime: startCPU,
		startTime:    time.Now(),
	}
}

// Start begins the sampling loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sampling {
		return
	}
	m.sampling = true
	m.samplingStop = make(chan struct{})

	go m.run(m.samplingStop)
}

// Stop terminates the sampling loop. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sampling {
		close(m.samplingStop)
		m.sampling = false
	}
}

func (m *Monitor) run(stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.beat()
		case <-stop:
			return
		}
	}
}

// Usage returns current resource usage.
func (m *Monitor) Usage() (*Usage, error) {
	usage := &Usage{
		GoroutineCount: runtime.NumGoroutine(),
	}

	if m.process != nil {
		if cpuTime, err := m.process.Times(); err == nil {
			elapsed := time.Since(m.startTime).Seconds()
			if elapsed > 0 {
				usage.CPUPercent = ((cpuTime.Total() - m.startCPUTime) / elapsed) * 100
			}
		}
		if memInfo, err := m.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
		}
		usage.ThreadCount, _ = m.process.NumThreads()
		usage.OpenFDs, _ = m.process.NumFDs()
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
	}

	return usage, nil
}

func (m *Monitor) beat() {
	usage, err := m.Usage()
	if err != nil {
		m.logger.Warn("heartbeat sample failed", zap.Error(err))
		return
	}

	pools := record.GlobalPoolStats()
	recStats := pools["record"]

	m.logger.Info("heartbeat",
		zap.Duration("uptime", time.Since(m.startTime)),
		zap.Float64("cpu_percent", usage.CPUPercent),
		zap.Uint64("rss_bytes", usage.MemoryRSS),
		zap.Float64("system_memory_percent", usage.SystemMemoryPercent),
		zap.Int("goroutines", usage.GoroutineCount),
		zap.Int32("open_fds", usage.OpenFDs),
		zap.Int64("records_allocated", recStats.Allocated),
		zap.Int64("records_in_use", recStats.InUse),
	)
}
