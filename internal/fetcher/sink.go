package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/okarpenko/autoria-scraper/internal/logger"
)

// DebugSink receives raw fetched HTML for offline inspection.
type DebugSink interface {
	Save(url, html string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Save(string, string) {}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FileSink writes each fetched page to dir as <url-slug>_<unix>.html.
// Write failures are logged and swallowed; a missing debug dump must never
// fail a fetch.
type FileSink struct {
	dir string
	log *logger.Logger
}

// NewFileSink creates the sink directory up front.
func NewFileSink(dir string, log *logger.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug directory: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileSink{dir: dir, log: log.ForComponent("debug-sink")}, nil
}

func (s *FileSink) Save(url, html string) {
	slug := slugRe.ReplaceAllString(url, "_")
	if len(slug) > 120 {
		slug = slug[:120]
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.html", slug, time.Now().Unix()))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		s.log.Warn().Str("path", path).Err(err).Msg("failed to write debug HTML")
	}
}
