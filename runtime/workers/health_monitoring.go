package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"campus-chat/domain/event"

	"github.com/shirou/gopsutil/process"
)

// Load is the chat side of a health sample.
type Load struct {
	Rooms       int
	Connections int
	Users       int
}

// HealthMonitoringWorker reports the CPU, memory and goroutine count of the
// server process at every interval, along with the rooms and connections it serves.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	load           func() Load
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, load func() Load, telemetryChan chan event.Event, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		load:           load,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			tracker, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			if w.load != nil {
				load := w.load()
				tracker.Rooms, tracker.Connections, tracker.Users = load.Rooms, load.Connections, load.Users
			}
			select {
			case w.telemetryChan <- event.Event{Type: event.PIDTrackerType, CreatedAt: time.Now().UTC(), Payload: tracker}:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

func selfStats(p *process.Process) (event.ProcessTracker, error) {
	status, err := p.Status()
	if err != nil {
		return event.ProcessTracker{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return event.ProcessTracker{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return event.ProcessTracker{}, err
	}
	return event.ProcessTracker{
		PID:        p.Pid,
		Status:     status,
		Cpu:        cpu,
		Ram:        ram,
		Goroutines: goruntime.NumGoroutine(),
	}, nil
}
