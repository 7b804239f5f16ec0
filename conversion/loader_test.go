package conversion

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
)

func TestLoadReportsMonotonicProgress(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3*loadChunkSize+17)
	var fractions []float64

	got, err := Load(context.Background(), iotest.HalfReader(bytes.NewReader(data)), int64(len(data)), 0, func(f float64) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("loaded bytes differ from the source")
	}
	if len(fractions) < 2 {
		t.Fatalf("expected several progress reports, got %v", fractions)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Errorf("progress went backwards: %v", fractions)
		}
	}
	if last := fractions[len(fractions)-1]; last != 1 {
		t.Errorf("final progress = %v, want 1", last)
	}
}

func TestLoadUnknownSizeOnlyReportsCompletion(t *testing.T) {
	var fractions []float64
	_, err := Load(context.Background(), bytes.NewReader(make([]byte, 2*loadChunkSize)), 0, 0, func(f float64) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(fractions) != 1 || fractions[0] != 1 {
		t.Errorf("expected a single completion report, got %v", fractions)
	}
}

func TestLoadEnforcesLimit(t *testing.T) {
	data := make([]byte, 1000)

	_, err := Load(context.Background(), bytes.NewReader(data), 0, 500, nil)
	if !errors.Is(err, ErrIO) {
		t.Errorf("undeclared oversize: expected ErrIO, got %v", err)
	}

	_, err = Load(context.Background(), bytes.NewReader(data), 1000, 500, nil)
	if !errors.Is(err, ErrIO) {
		t.Errorf("declared oversize: expected ErrIO, got %v", err)
	}
}

func TestLoadWrapsReadErrors(t *testing.T) {
	r := iotest.ErrReader(errors.New("disk on fire"))
	_, err := Load(context.Background(), r, 10, 0, nil)
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if Kind(err) != KindIOFailure {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestLoadStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, bytes.NewReader([]byte("data")), 4, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
