package sinks

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/progress"
)

// LogObserver writes one line per result. Successes are logged only when printSuccess is
// set, redirects stay silent and everything else is a warning.
type LogObserver struct {
	logger       *zap.Logger
	printSuccess bool
}

// NewLogObserver wires a zap logger to the bus.
func NewLogObserver(logger *zap.Logger, printSuccess bool) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger, printSuccess: printSuccess}
}

// Notify implements progress.Observer.
func (o *LogObserver) Notify(evt progress.Event) {
	switch evt.Kind {
	case progress.KindFinished:
		o.logger.Info("finish",
			zap.Int("dispatched", evt.Counters.Dispatched),
			zap.Int("retrieved", evt.Counters.Retrieved),
		)
	case progress.KindResult:
		o.result(evt)
	}
}

func (o *LogObserver) result(evt progress.Event) {
	res := evt.Result
	if res == nil {
		return
	}
	class := progress.ClassifyResult(res)
	fields := []zap.Field{
		zap.Int("n", evt.Counters.Retrieved),
		zap.String("url", res.URL),
		zap.Int("status", res.Status),
		zap.Int64("time_ms", res.ElapsedMillis()),
	}
	switch {
	case class == progress.Status2xx && !res.Failed():
		if o.printSuccess {
			o.logger.Info("fetched", fields...)
		}
	case class == progress.Status3xx && !res.Failed():
	default:
		fields = append(fields, zap.String("error", res.Error), zap.Strings("referrers", referrerStrings(res)))
		if res.ErrorKind != crawler.KindNone {
			fields = append(fields, zap.String("kind", string(res.ErrorKind)))
		}
		o.logger.Warn("fetch problem", fields...)
	}
}

func referrerStrings(res *crawler.Result) []string {
	refs := res.Referrers.List()
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.String())
	}
	return out
}
