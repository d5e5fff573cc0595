package tracking

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

// lineParser reads "tracking,code" lines.
type lineParser struct{}

func (lineParser) FeedDir() string { return "remote/feed/" }

func (lineParser) ParseFeed(name string, r io.Reader) ([]shipper.RawEvent, error) {
	var out []shipper.RawEvent
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		tn, code, ok := strings.Cut(sc.Text(), ",")
		if !ok {
			return nil, errors.New("bad line")
		}
		out = append(out, shipper.RawEvent{TrackingNumber: tn, Code: code, Time: day})
	}
	return out, sc.Err()
}

type fakeDownloader struct {
	files     map[string]string
	remoteDir string
	remove    bool
}

func (d *fakeDownloader) Download(ctx context.Context, remoteDir, localDir string, remove bool) ([]string, error) {
	d.remoteDir, d.remove = remoteDir, remove
	var out []string
	for name, body := range d.files {
		p := filepath.Join(localDir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newFeed(t *testing.T, d Downloader, production bool) (*FileFeedSource, string) {
	t.Helper()
	inbox := t.TempDir()
	s := NewFileFeedSource(d, inbox, production, otelzap.New(zap.NewNop()))
	s.now = func() time.Time { return time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC) }
	return s, inbox
}

func TestFileFeedSource_ArchivesCommittedFiles(t *testing.T) {
	d := &fakeDownloader{files: map[string]string{
		"a.csv": "111,OK\n222,PL\n",
		"b.csv": "333,OK\n",
	}}
	s, inbox := newFeed(t, d, false)

	var seen []string
	report, err := s.Run(context.Background(), "aramex", lineParser{}, func(ctx context.Context, events []shipper.RawEvent) (*Report, error) {
		for _, e := range events {
			seen = append(seen, e.TrackingNumber)
		}
		if events[0].TrackingNumber == "333" {
			return &Report{Events: len(events), Failed: 1}, errors.New("db down")
		}
		return &Report{Events: len(events)}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "remote/feed/", d.remoteDir)
	assert.False(t, d.remove, "remote files are kept outside production")
	assert.Equal(t, []string{"111", "222", "333"}, seen)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 1, report.Archived)
	assert.Len(t, report.Reports, 2)

	dir := filepath.Join(inbox, "aramex")
	assert.FileExists(t, filepath.Join(dir, "Archive", "2024-03-10_09:05-a.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "a.csv"))
	assert.FileExists(t, filepath.Join(dir, "b.csv"), "failed file stays for the next run")
}

func TestFileFeedSource_SkipsUnparsableFile(t *testing.T) {
	s, inbox := newFeed(t, &fakeDownloader{files: map[string]string{"bad.csv": "nonsense\n"}}, true)

	calls := 0
	report, err := s.Run(context.Background(), "aramex", lineParser{}, func(ctx context.Context, events []shipper.RawEvent) (*Report, error) {
		calls++
		return &Report{}, nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Zero(t, report.Archived)
	assert.FileExists(t, filepath.Join(inbox, "aramex", "bad.csv"))
}

func TestFileFeedSource_RemovesRemoteInProduction(t *testing.T) {
	d := &fakeDownloader{}
	s, _ := newFeed(t, d, true)

	_, err := s.Run(context.Background(), "aramex", lineParser{}, func(ctx context.Context, events []shipper.RawEvent) (*Report, error) {
		return &Report{}, nil
	})
	require.NoError(t, err)
	assert.True(t, d.remove)
}
