package worker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
	"github.com/JakeFAU/sitecrawler/internal/markup"
)

// Parser kinds accepted by Config.Parser.
const (
	ParserHTML = "html"
	ParserXML  = "xml"
)

// Config controls the worker's HTTP client and parser.
type Config struct {
	Host           string
	Username       string
	Password       string
	UserAgent      string
	RequestTimeout time.Duration
	MaxBodyBytes   int
	Parser         string
}

// Factory creates one Context per worker goroutine.
type Factory struct {
	cfg      Config
	host     *url.URL
	resolver markup.EntityResolver
	logger   *zap.Logger
}

// NewFactory validates cfg. The resolver is only consulted by the xml parser.
func NewFactory(cfg Config, resolver markup.EntityResolver, logger *zap.Logger) (*Factory, error) {
	host, err := crawler.ValidateHost(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("worker host: %w", err)
	}
	switch cfg.Parser {
	case "":
		cfg.Parser = ParserHTML
	case ParserHTML, ParserXML:
	default:
		return nil, fmt.Errorf("unknown parser %q", cfg.Parser)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, host: host, resolver: resolver, logger: logger}, nil
}

// NewContext builds the context for worker id. Requests made through it end with ctx.
func (f *Factory) NewContext(ctx context.Context, id int) (crawler.WorkerContext, error) {
	var parser crawler.Parser
	switch f.cfg.Parser {
	case ParserXML:
		parser = markup.NewXMLParser(f.resolver)
	default:
		parser = markup.NewHTMLParser()
	}
	f.logger.Debug("worker context ready",
		zap.Int("worker", id),
		zap.String("parser", f.cfg.Parser),
		zap.Bool("auth", f.cfg.Username != ""),
	)
	return newContext(ctx, f.cfg, f.host, parser), nil
}
