package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleSeed = `
instruments:
  - id: ACME
    name: Acme Inc
    reference_price: 101.25
  - id: GLOBX
    reference_price: 12
    active: false
accounts:
  - id: alice
    cash: 10000
  - id: bob
    cash: 0
    positions:
      - instrument: ACME
        quantity: 50
        average_price: 95.5
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Instruments) != 2 || len(s.Accounts) != 2 {
		t.Fatalf("got %d instruments, %d accounts", len(s.Instruments), len(s.Accounts))
	}
	if in := s.Instruments[0]; in.ID != "ACME" || in.ReferencePrice != 101.25 || in.Active != nil {
		t.Errorf("unexpected instrument %+v", in)
	}
	if in := s.Instruments[1]; in.Active == nil || *in.Active {
		t.Errorf("GLOBX should be inactive, got %+v", in)
	}
	bob := s.Accounts[1]
	if len(bob.Positions) != 1 || bob.Positions[0].Quantity != 50 || *bob.Positions[0].AveragePrice != 95.5 {
		t.Errorf("unexpected positions %+v", bob.Positions)
	}
}

func TestParseSeed_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":          "instruments:\n  - id: A\n    ticker: A\n",
		"missing id":           "instruments:\n  - reference_price: 1\n",
		"duplicate instrument": "instruments:\n  - id: A\n  - id: A\n",
		"malformed":            "instruments: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseSeed_Empty(t *testing.T) {
	s, err := ParseSeed(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Instruments) != 0 || len(s.Accounts) != 0 {
		t.Errorf("expected an empty seed, got %+v", s)
	}
}

func TestLoadSeed_MissingFile(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
