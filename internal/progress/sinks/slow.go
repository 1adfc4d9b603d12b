package sinks

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// SlowRequestObserver flags fetches that took longer than a threshold. It cannot cancel
// them; it only reports.
type SlowRequestObserver struct {
	threshold time.Duration
	logger    *zap.Logger
	count     atomic.Int64
}

// NewSlowRequestObserver flags results whose elapsed time exceeds threshold.
func NewSlowRequestObserver(threshold time.Duration, logger *zap.Logger) *SlowRequestObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlowRequestObserver{threshold: threshold, logger: logger}
}

// Notify implements progress.Observer.
func (o *SlowRequestObserver) Notify(evt progress.Event) {
	switch evt.Kind {
	case progress.KindResult:
		if evt.Result == nil || evt.Result.Elapsed <= o.threshold {
			return
		}
		o.count.Add(1)
		o.logger.Warn("slow request",
			zap.String("url", evt.Result.URL),
			zap.Int64("time_ms", evt.Result.ElapsedMillis()),
			zap.Duration("threshold", o.threshold),
		)
	case progress.KindFinished:
		if n := o.count.Load(); n > 0 {
			o.logger.Info("slow requests", zap.Int64("count", n), zap.Duration("threshold", o.threshold))
		}
	}
}

// Count returns how many slow requests were seen.
func (o *SlowRequestObserver) Count() int64 {
	return o.count.Load()
}
