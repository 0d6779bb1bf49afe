package domain

import (
	"sort"
	"sync"
	"time"
)

// Instrument is a tradable security. The trading core treats it as
// reference data owned by the instrument-management collaborator.
type Instrument struct {
	InstrumentID   string
	Symbol         string
	Name           string
	ReferencePrice int64 // cents
	Active         bool
	UpdatedAt      time.Time
}

// InstrumentRegistry tracks known instruments in a thread-safe manner.
// Lookups return copies so callers never observe a concurrent update.
type InstrumentRegistry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

// NewInstrumentRegistry creates an empty InstrumentRegistry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		instruments: make(map[string]*Instrument),
	}
}

// Register adds an instrument. It returns ErrInstrumentAlreadyExists if the
// ID is taken. Safe for concurrent use.
func (r *InstrumentRegistry) Register(in Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instruments[in.InstrumentID]; ok {
		return ErrInstrumentAlreadyExists
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = time.Now()
	}
	r.instruments[in.InstrumentID] = &in
	return nil
}

// Get returns a copy of the instrument or ErrInstrumentNotFound.
func (r *InstrumentRegistry) Get(id string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.instruments[id]
	if !ok {
		return Instrument{}, ErrInstrumentNotFound
	}
	return *in, nil
}

// Exists returns true if the instrument has been registered.
func (r *InstrumentRegistry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[id]
	return ok
}

// Update applies the non-nil fields to the instrument and returns the result.
func (r *InstrumentRegistry) Update(id string, active *bool, referencePrice *int64) (Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.instruments[id]
	if !ok {
		return Instrument{}, ErrInstrumentNotFound
	}
	if active != nil {
		in.Active = *active
	}
	if referencePrice != nil {
		in.ReferencePrice = *referencePrice
	}
	in.UpdatedAt = time.Now()
	return *in, nil
}

// List returns all instruments ordered by ID.
func (r *InstrumentRegistry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instrument, 0, len(r.instruments))
	for _, in := range r.instruments {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}
