package dispatch

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	ht := NewHealthTracker(3, time.Hour)

	for i := 0; i < 2; i++ {
		ht.RecordFailure("openrouter")
		if !ht.Allow("openrouter") {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}
	ht.RecordFailure("openrouter")
	if ht.Allow("openrouter") {
		t.Error("breaker should be open at threshold")
	}

	// Other providers are unaffected.
	if !ht.Allow("lmstudio") {
		t.Error("unrelated provider blocked")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	ht := NewHealthTracker(1, 10*time.Millisecond)

	ht.RecordFailure("openrouter")
	if ht.Allow("openrouter") {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if !ht.Allow("openrouter") {
		t.Fatal("breaker should allow a probe after the recovery interval")
	}

	// A failed probe reopens immediately.
	ht.RecordFailure("openrouter")
	if ht.Allow("openrouter") {
		t.Error("failed probe should reopen the breaker")
	}

	// A successful probe closes it.
	time.Sleep(20 * time.Millisecond)
	ht.RecordSuccess("openrouter")
	if !ht.Allow("openrouter") {
		t.Error("successful probe should close the breaker")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	ht := NewHealthTracker(3, time.Hour)

	ht.RecordFailure("openrouter")
	ht.RecordFailure("openrouter")
	ht.RecordSuccess("openrouter")
	ht.RecordFailure("openrouter")
	ht.RecordFailure("openrouter")

	if !ht.Allow("openrouter") {
		t.Error("failure count should reset on success")
	}
}

func TestBreakerStates(t *testing.T) {
	ht := NewHealthTracker(1, time.Hour)

	ht.RecordSuccess("lmstudio")
	ht.RecordFailure("openrouter")

	states := ht.States()
	if states["lmstudio"] != "closed" {
		t.Errorf("lmstudio state = %s, want closed", states["lmstudio"])
	}
	if states["openrouter"] != "open" {
		t.Errorf("openrouter state = %s, want open", states["openrouter"])
	}
}
