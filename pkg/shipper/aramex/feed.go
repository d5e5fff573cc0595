package aramex

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"go.uber.org/zap"
)

const (
	feedDir        = "carriers/aramex/tracking_numbers/"
	feedDateLayout = "02/01/06T15:04"
)

var feedColumns = []string{"AWB", "PINumber", "ProblemCode", "ActionDate", "ActionTime", "Comment1", "Comment2"}

// FeedDir returns the remote directory of the tracking feed.
func (c *Client) FeedDir() string {
	return feedDir
}

// ParseFeed reads an Aramex tracking file. The event code is the PI number
// followed by the problem code. Rows with a bad date are logged and skipped.
func (c *Client) ParseFeed(name string, r io.Reader) ([]shipper.RawEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, col := range feedColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", name, col)
		}
	}

	var events []shipper.RawEvent
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn("Aramex feed row unreadable", zap.String("file", name), zap.Int("line", line), zap.Error(err))
			continue
		}
		field := func(col string) string {
			if i := index[col]; i < len(record) {
				return record[i]
			}
			return ""
		}

		awb := strings.ReplaceAll(field("AWB"), " ", "")
		code := strings.ToUpper(strings.ReplaceAll(field("PINumber"), " ", "") + strings.ReplaceAll(field("ProblemCode"), " ", ""))
		if awb == "" || code == "" {
			continue
		}

		stamp := strings.TrimSpace(field("ActionDate")) + "T" + strings.TrimSpace(field("ActionTime"))
		at, err := time.Parse(feedDateLayout, stamp)
		if err != nil {
			c.logger.Warn("Aramex feed row with unparsable date",
				zap.String("file", name),
				zap.Int("line", line),
				zap.String("tracking_number", awb),
				zap.String("date", stamp),
			)
			continue
		}

		events = append(events, shipper.RawEvent{
			TrackingNumber: awb,
			Code:           code,
			Time:           at,
			Text:           joinNonEmpty(". ", field("Comment1"), field("Comment2")),
		})
	}
	return events, nil
}
