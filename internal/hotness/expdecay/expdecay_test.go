package expdecay

import (
	"math"
	"sync"
	"testing"
	"time"
)

const (
	stockholm = "881f1d4887fffff"
	malmo     = "881f05a5a1fffff"
	goteborg  = "881f25c5dbfffff"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTrackerForTest(hl time.Duration) (*Tracker, *fakeClock) {
	fc := &fakeClock{now: time.Unix(0, 0).UTC()}
	tr := New(hl)
	tr.now = fc.Now
	return tr, fc
}

func almostEq(t *testing.T, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("got=%g want=%g (eps=%g)", got, want, eps)
	}
}

func TestIncAndScore_AccumulatesImmediately(t *testing.T) {
	tr, _ := newTrackerForTest(time.Hour)

	for i := 1; i <= 3; i++ {
		tr.Inc(stockholm)
		almostEq(t, tr.Score(stockholm), float64(i), 1e-9)
	}
	if tr.Score(malmo) != 0 {
		t.Fatal("untouched cell must score 0")
	}
}

func TestHalfLife_DecaysByHalf(t *testing.T) {
	hl := 2 * time.Second
	tr, fc := newTrackerForTest(hl)

	tr.Inc(stockholm)
	fc.Add(hl)
	almostEq(t, tr.Score(stockholm), 0.5, 1e-6)

	// increment applies the pending decay first
	tr.Inc(stockholm)
	almostEq(t, tr.Score(stockholm), 1.5, 1e-6)

	fc.Add(hl)
	almostEq(t, tr.Score(stockholm), 0.75, 1e-6)
}

func TestConcurrency_ManyIncSameCell(t *testing.T) {
	tr, _ := newTrackerForTest(time.Minute)
	const N = 256

	var wg sync.WaitGroup
	wg.Add(N)
	for range N {
		go func() {
			defer wg.Done()
			tr.Inc(stockholm)
		}()
	}
	wg.Wait()

	almostEq(t, tr.Score(stockholm), N, 1e-9)
}

func TestReset_OnlySelectedCells(t *testing.T) {
	tr, _ := newTrackerForTest(30 * time.Second)

	tr.Inc(stockholm)
	tr.Inc(malmo)
	tr.Reset(stockholm, "")

	if got := tr.Score(stockholm); got != 0 {
		t.Fatalf("reset failed: got %g want 0", got)
	}
	if got := tr.Score(malmo); got <= 0 {
		t.Fatalf("unexpected reset of %s: got %g", malmo, got)
	}
	if tr.Size() != 1 {
		t.Fatalf("size=%d want 1", tr.Size())
	}
}

func TestTopN_OrdersByDecayedScore(t *testing.T) {
	tr, fc := newTrackerForTest(time.Minute)

	for range 4 {
		tr.Inc(stockholm)
	}
	fc.Add(time.Minute) // stockholm decays to ~2
	for range 3 {
		tr.Inc(malmo)
	}
	tr.Inc(goteborg)

	top := tr.TopN(10)
	if len(top) != 3 {
		t.Fatalf("len=%d want 3", len(top))
	}
	if top[0].Cell != malmo || top[1].Cell != stockholm || top[2].Cell != goteborg {
		t.Fatalf("order=%v", top)
	}
	almostEq(t, top[1].Score, 2, 1e-6)

	if got := tr.TopN(1); len(got) != 1 || got[0].Cell != malmo {
		t.Fatalf("TopN(1)=%v", got)
	}
	if got := tr.TopN(0); got != nil {
		t.Fatalf("TopN(0)=%v want nil", got)
	}
}

func TestTopN_TiesOrderByCell(t *testing.T) {
	tr, _ := newTrackerForTest(time.Minute)
	tr.Inc(stockholm)
	tr.Inc(goteborg)
	tr.Inc(malmo)

	top := tr.TopN(3)
	if top[0].Cell != malmo || top[1].Cell != stockholm || top[2].Cell != goteborg {
		t.Fatalf("tie order=%v", top)
	}
}

func TestPrune_DropsColdCells(t *testing.T) {
	tr, fc := newTrackerForTest(time.Minute)

	tr.Inc(stockholm)
	fc.Add(10 * time.Minute) // 1/1024
	tr.Inc(malmo)

	if n := tr.Prune(0.01); n != 1 {
		t.Fatalf("pruned=%d want 1", n)
	}
	if tr.Size() != 1 || tr.Score(malmo) == 0 {
		t.Fatalf("wrong cell pruned: size=%d", tr.Size())
	}
}

func TestDecayHelper_Edges(t *testing.T) {
	if got := decay(0, 10, 60); got != 0 {
		t.Fatalf("expected 0, got %g", got)
	}
	if got := decay(5, 0, 60); got != 5 {
		t.Fatalf("expected 5, got %g", got)
	}
	if got := decay(5, 10, 0); got != 5 {
		t.Fatalf("expected 5, got %g", got)
	}
}
