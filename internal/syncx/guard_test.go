package syncx

import (
	"errors"
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard("hello")

	old := g.Swap("world")
	if old != "hello" {
		t.Errorf("Swap returned %q, want %q", old, "hello")
	}
	if got := g.Get(); got != "world" {
		t.Errorf("Get() after Swap = %q, want %q", got, "world")
	}
}

func TestView(t *testing.T) {
	g := NewGuard([]int{1, 2, 3})

	n := View(g, func(v []int) int { return len(v) })
	if n != 3 {
		t.Errorf("View() = %d, want 3", n)
	}
}

func TestGuardWrite(t *testing.T) {
	type counter struct{ value int }
	g := NewGuard(counter{value: 0})

	g.Write(func(c *counter) {
		c.value = 42
	})

	if got := g.Get().value; got != 42 {
		t.Errorf("Get().value = %d, want 42", got)
	}
}

func TestGuardModify(t *testing.T) {
	g := NewGuard("idle")
	errBusy := errors.New("busy")
	start := func(s *string) error {
		if *s != "idle" {
			return errBusy
		}
		*s = "live"
		return nil
	}

	if err := g.Modify(start); err != nil {
		t.Fatalf("first Modify: %v", err)
	}
	if err := g.Modify(start); !errors.Is(err, errBusy) {
		t.Errorf("second Modify = %v, want errBusy", err)
	}
	if got := g.Get(); got != "live" {
		t.Errorf("Get() = %q, want live", got)
	}
}

func TestGuardConcurrentSafety(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) {
				*v++
			})
		}()
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}

	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}

func TestGuardWithStruct(t *testing.T) {
	type state struct {
		failures  int
		successes int
	}

	g := NewGuard(state{})

	g.Write(func(s *state) {
		s.failures = 5
		s.successes = 10
	})

	got := g.Get()
	if got.failures != 5 || got.successes != 10 {
		t.Errorf("Get() = %+v, want {5, 10}", got)
	}
}
