package task

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/clock/system"
	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Options configures the tasks a Factory builds.
type Options struct {
	// Tidy normalises HTML to XHTML before link extraction.
	Tidy bool
	// SkipLinks disables link extraction, for replaying request logs.
	SkipLinks bool
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// Factory builds FetchTasks.
type Factory struct {
	opts Options
}

var _ crawler.TaskFactory = (*Factory)(nil)

// NewFactory returns a factory. Missing clock and logger get defaults.
func NewFactory(opts Options) *Factory {
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Factory{opts: opts}
}

// NewTask implements crawler.TaskFactory.
func (f *Factory) NewTask(d crawler.Dispatcher, rawURL string, ref crawler.Referrer) crawler.Task {
	return &FetchTask{
		d:          d,
		url:        rawURL,
		ref:        ref,
		discovered: f.opts.Clock.Now(),
		tidy:       f.opts.Tidy,
		skipLinks:  f.opts.SkipLinks,
		logger:     f.opts.Logger,
	}
}
