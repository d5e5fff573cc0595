// Package citycode resolves customer city spellings into carrier city codes.
package citycode

import (
	"embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.yaml.in/yaml/v4"
)

//go:embed data/*.yaml
var data embed.FS

// ErrNotFound is returned when none of the candidate spellings is known.
var ErrNotFound = errors.New("city code not found")

// Country is the YAML shape of one country's entry.
type Country struct {
	CountryCode string            `yaml:"country_code"`
	Aliases     map[string]string `yaml:"aliases"`
	Cities      []string          `yaml:"cities"`
}

// Table maps (country, city) to the code a carrier expects.
type Table struct {
	codes     map[string]map[string]string
	countries map[string]string
}

// DHL returns the embedded DHL destination table.
func DHL() (*Table, error) {
	raw, err := data.ReadFile("data/dhl.yaml")
	if err != nil {
		return nil, fmt.Errorf("read dhl city codes: %w", err)
	}
	return Parse(raw)
}

// Load reads a table from a YAML file on disk.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read city codes %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a table from YAML.
func Parse(raw []byte) (*Table, error) {
	var doc map[string]Country
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse city codes: %w", err)
	}

	t := &Table{
		codes:     make(map[string]map[string]string, len(doc)),
		countries: make(map[string]string, len(doc)),
	}
	for cc, c := range doc {
		keys := slices.Sorted(maps.Keys(c.Aliases))
		m := make(map[string]string, len(c.Aliases)*2+len(c.Cities))
		for _, city := range c.Cities {
			m[capitalize(city)] = city
		}
		// Codes also resolve to themselves unless an alias claims the spelling.
		values := make([]string, 0, len(keys))
		for _, k := range keys {
			values = append(values, c.Aliases[k])
		}
		slices.Sort(values)
		for _, v := range values {
			m[capitalize(v)] = v
		}
		for _, k := range keys {
			m[capitalize(k)] = c.Aliases[k]
		}
		t.codes[cc] = m
		if c.CountryCode != "" {
			t.countries[cc] = c.CountryCode
		}
	}
	return t, nil
}

// Lookup returns the code of the first candidate city known for country.
func (t *Table) Lookup(country string, cities ...string) (string, error) {
	if t == nil {
		return "", ErrNotFound
	}
	if m, ok := t.codes[country]; ok {
		for _, city := range cities {
			if code := m[capitalize(city)]; code != "" {
				return code, nil
			}
		}
	}
	return "", ErrNotFound
}

// CountryCode returns the carrier's code for an ISO country, defaulting to the ISO code.
func (t *Table) CountryCode(country string) string {
	if t != nil {
		if c, ok := t.countries[country]; ok {
			return c
		}
	}
	return country
}

// Countries returns the number of countries in the table.
func (t *Table) Countries() int {
	if t == nil {
		return 0
	}
	return len(t.codes)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
