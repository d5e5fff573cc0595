package tracking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

const (
	archiveDir    = "Archive"
	archiveLayout = "2006-01-02_15:04"
)

// Downloader fetches the files of a remote directory into a local one.
type Downloader interface {
	Download(ctx context.Context, remoteDir, localDir string, remove bool) ([]string, error)
}

// FeedReport summarizes one feed run.
type FeedReport struct {
	Files    int
	Archived int
	Reports  []*Report
}

// FileFeedSource reads tracking files a carrier drops on a remote server.
// Files land in a local inbox and move to its Archive directory once their
// events are committed, so a failed file is picked up again next run.
type FileFeedSource struct {
	downloader Downloader
	inbox      string
	production bool
	logger     *otelzap.Logger
	now        func() time.Time
}

// NewFileFeedSource creates a feed source. Remote files are deleted after
// download only in production.
func NewFileFeedSource(downloader Downloader, inbox string, production bool, logger *otelzap.Logger) *FileFeedSource {
	return &FileFeedSource{
		downloader: downloader,
		inbox:      inbox,
		production: production,
		logger:     logger,
		now:        time.Now,
	}
}

// Run downloads new files of the carrier and hands each file's events to
// ingest. A nil downloader only processes what is already in the inbox.
func (s *FileFeedSource) Run(ctx context.Context, carrier string, parser shipper.FeedParser, ingest func(ctx context.Context, events []shipper.RawEvent) (*Report, error)) (*FeedReport, error) {
	log := s.logger.Ctx(ctx)
	dir := filepath.Join(s.inbox, carrier)
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}

	if s.downloader != nil {
		if _, err := s.downloader.Download(ctx, parser.FeedDir(), dir, s.production); err != nil {
			return nil, fmt.Errorf("download feed: %w", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	report := &FeedReport{Files: len(names)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		events, err := s.parse(dir, name, parser)
		if err != nil {
			log.Error("Failed to parse feed file", zap.String("carrier", carrier), zap.String("file", name), zap.Error(err))
			continue
		}

		r, err := ingest(ctx, events)
		if r != nil {
			report.Reports = append(report.Reports, r)
		}
		if err != nil {
			log.Error("Feed file not archived", zap.String("carrier", carrier), zap.String("file", name), zap.Error(err))
			continue
		}

		archived := s.now().UTC().Format(archiveLayout) + "-" + name
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, archiveDir, archived)); err != nil {
			return report, fmt.Errorf("archive %s: %w", name, err)
		}
		report.Archived++
		log.Info("Feed file processed", zap.String("carrier", carrier), zap.String("file", name), zap.Int("events", len(events)))
	}
	return report, nil
}

func (s *FileFeedSource) parse(dir, name string, parser shipper.FeedParser) ([]shipper.RawEvent, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parser.ParseFeed(name, f)
}
