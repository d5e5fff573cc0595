package shipper

import (
	"strconv"
	"strings"
)

// DefaultChannel is the settings bucket every channel falls back to.
const DefaultChannel = "default"

// Settings holds the configuration of one carrier. Values are grouped per
// sales channel; a channel only lists what differs from the default bucket.
type Settings struct {
	Enabled         bool
	UseMock         bool
	AwbWarningLimit int
	Channels        map[string]map[string]string
}

// Channel returns the effective settings for a sales channel.
func (s Settings) Channel(code string) ChannelSettings {
	merged := make(map[string]string, len(s.Channels[DefaultChannel]))
	for k, v := range s.Channels[DefaultChannel] {
		merged[k] = v
	}
	if code != DefaultChannel {
		for k, v := range s.Channels[code] {
			merged[k] = v
		}
	}
	return ChannelSettings(merged)
}

// ChannelSettings is the merged view of one channel's settings.
type ChannelSettings map[string]string

// String returns the value of key or "".
func (c ChannelSettings) String(key string) string {
	return c[key]
}

// Int returns the value of key as an int, or 0 when missing or malformed.
func (c ChannelSettings) Int(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c[key]))
	if err != nil {
		return 0
	}
	return n
}

// Float returns the value of key as a float64, or 0 when missing or malformed.
func (c ChannelSettings) Float(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(c[key]), 64)
	if err != nil {
		return 0
	}
	return f
}

// Bool returns the value of key as a bool, false when missing.
func (c ChannelSettings) Bool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(c[key]))
	return b
}

// NumberGroup names the tracking number pool the channel draws from.
// Channels without an explicit group share the default pool.
func (c ChannelSettings) NumberGroup() string {
	if g := c["number_group"]; g != "" {
		return g
	}
	return DefaultChannel
}
