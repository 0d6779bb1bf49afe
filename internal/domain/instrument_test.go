package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInstrumentRegistry_RegisterAndGet(t *testing.T) {
	r := NewInstrumentRegistry()

	if r.Exists("X") {
		t.Error("Exists(X) = true before registration")
	}
	if err := r.Register(Instrument{InstrumentID: "X", Symbol: "XCO", ReferencePrice: 10000, Active: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	in, err := r.Get("X")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if in.Symbol != "XCO" || in.ReferencePrice != 10000 || !in.Active {
		t.Errorf("Get(X) = %+v", in)
	}
	if in.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on registration")
	}
}

func TestInstrumentRegistry_Duplicate(t *testing.T) {
	r := NewInstrumentRegistry()
	_ = r.Register(Instrument{InstrumentID: "X"})

	err := r.Register(Instrument{InstrumentID: "X"})
	if !errors.Is(err, ErrInstrumentAlreadyExists) {
		t.Errorf("err = %v, want ErrInstrumentAlreadyExists", err)
	}
}

func TestInstrumentRegistry_GetNotFound(t *testing.T) {
	r := NewInstrumentRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrInstrumentNotFound) {
		t.Errorf("err = %v, want ErrInstrumentNotFound", err)
	}
}

func TestInstrumentRegistry_Update(t *testing.T) {
	r := NewInstrumentRegistry()
	_ = r.Register(Instrument{InstrumentID: "X", ReferencePrice: 100, Active: true})

	inactive := false
	in, err := r.Update("X", &inactive, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if in.Active {
		t.Error("expected instrument to be inactive")
	}
	if in.ReferencePrice != 100 {
		t.Errorf("ReferencePrice = %d, want unchanged 100", in.ReferencePrice)
	}

	price := int64(250)
	in, _ = r.Update("X", nil, &price)
	if in.ReferencePrice != 250 || in.Active {
		t.Errorf("after price update got %+v", in)
	}

	if _, err := r.Update("nope", nil, nil); !errors.Is(err, ErrInstrumentNotFound) {
		t.Errorf("err = %v, want ErrInstrumentNotFound", err)
	}
}

func TestInstrumentRegistry_ConcurrentAccess(t *testing.T) {
	r := NewInstrumentRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = r.Register(Instrument{InstrumentID: id, Active: true})
		}(fmt.Sprintf("I%d", i))
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = r.Get(id)
		}(fmt.Sprintf("I%d", i))
	}
	wg.Wait()

	if got := len(r.List()); got != 50 {
		t.Errorf("List() len = %d, want 50", got)
	}
}
