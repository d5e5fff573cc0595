package config

import (
	"fmt"
	"os"
	"slices"

	"go.yaml.in/yaml/v4"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

// defaultWarningLimits apply when a carrier entry omits awb_warning_limit.
var defaultWarningLimits = map[string]int{
	shipper.CarrierAramex:    6000,
	shipper.CarrierAramexSA:  5000,
	shipper.CarrierNaqel:     5000,
	shipper.CarrierPostaPlus: 1000,
}

type carriersFile struct {
	Carriers map[string]carrierEntry `yaml:"carriers"`
}

type carrierEntry struct {
	Enabled         bool                         `yaml:"enabled"`
	UseMock         bool                         `yaml:"use_mock"`
	AwbWarningLimit *int                         `yaml:"awb_warning_limit"`
	Channels        map[string]map[string]string `yaml:"channels"`
}

// LoadCarriers reads the carrier settings file.
func LoadCarriers(path string) (map[string]shipper.Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read carriers file: %w", err)
	}
	return ParseCarriers(raw)
}

// ParseCarriers builds the settings of every known carrier. Carriers missing
// from the document come back disabled.
func ParseCarriers(raw []byte) (map[string]shipper.Settings, error) {
	var doc carriersFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse carriers file: %w", err)
	}

	for name := range doc.Carriers {
		if !slices.Contains(shipper.Carriers, name) {
			return nil, fmt.Errorf("carriers file: unknown carrier %q", name)
		}
	}

	out := make(map[string]shipper.Settings, len(shipper.Carriers))
	for _, name := range shipper.Carriers {
		entry, ok := doc.Carriers[name]
		if !ok {
			out[name] = shipper.Settings{AwbWarningLimit: defaultWarningLimits[name]}
			continue
		}

		limit := defaultWarningLimits[name]
		if entry.AwbWarningLimit != nil {
			limit = *entry.AwbWarningLimit
		}
		if limit < 0 {
			return nil, fmt.Errorf("carriers file: %s: negative awb_warning_limit", name)
		}

		channels := make(map[string]map[string]string, len(entry.Channels)+1)
		for ch, values := range entry.Channels {
			channels[ch] = values
		}
		if channels[shipper.DefaultChannel] == nil {
			channels[shipper.DefaultChannel] = map[string]string{}
		}

		out[name] = shipper.Settings{
			Enabled:         entry.Enabled,
			UseMock:         entry.UseMock,
			AwbWarningLimit: limit,
			Channels:        channels,
		}
	}
	return out, nil
}
