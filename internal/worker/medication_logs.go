package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/portal-api/internal/service/medication"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

// MedicationLogWorker runs the daily log generation pass on an interval.
// Generation is idempotent, so overlapping passes and restarts are harmless;
// the interval only bounds how late a day's pending rows can appear.
type MedicationLogWorker struct {
	service  *medication.Service
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewMedicationLogWorker(service *medication.Service, interval time.Duration, logger *logger.Logger, metrics *metrics.Metrics) *MedicationLogWorker {
	if interval <= 0 {
		panic("interval must be greater than 0")
	}
	return &MedicationLogWorker{
		service:  service,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (w *MedicationLogWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting medication log worker")

	// generate immediately on startup so a fresh deploy does not wait a
	// full interval for today's rows
	w.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down medication log worker")
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *MedicationLogWorker) runPass(ctx context.Context) {
	inserted, err := w.service.GenerateDailyLogs(ctx, w.now())
	if err != nil {
		w.logger.Error(err, "Failed to generate medication logs")
		return
	}

	w.metrics.MedicationLogsCreated.Add(float64(inserted))
	if inserted > 0 {
		w.logger.Info("Generated medication logs", "inserted", inserted)
	}
}
