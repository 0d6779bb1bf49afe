package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the start-up reference data: instruments and the accounts to
// open with them.
type Seed struct {
	Instruments []SeedInstrument `yaml:"instruments"`
	Accounts    []SeedAccount    `yaml:"accounts"`
}

// SeedInstrument is one instrument in the seed file. Prices are in dollars.
type SeedInstrument struct {
	ID             string  `yaml:"id"`
	Symbol         string  `yaml:"symbol"`
	Name           string  `yaml:"name"`
	ReferencePrice float64 `yaml:"reference_price"`
	Active         *bool   `yaml:"active"`
}

// SeedAccount is one account in the seed file.
type SeedAccount struct {
	ID        string         `yaml:"id"`
	Cash      float64        `yaml:"cash"`
	Positions []SeedPosition `yaml:"positions"`
}

// SeedPosition is an opening position. A missing average_price defaults to
// the instrument's reference price.
type SeedPosition struct {
	Instrument   string   `yaml:"instrument"`
	Quantity     int64    `yaml:"quantity"`
	AveragePrice *float64 `yaml:"average_price"`
}

// LoadSeed reads and parses a YAML seed file. Unknown keys are rejected.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML seed data.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seen := make(map[string]bool, len(s.Instruments))
	for _, in := range s.Instruments {
		if in.ID == "" {
			return nil, fmt.Errorf("parse seed: instrument without id")
		}
		if seen[in.ID] {
			return nil, fmt.Errorf("parse seed: duplicate instrument %s", in.ID)
		}
		seen[in.ID] = true
	}
	return &s, nil
}
