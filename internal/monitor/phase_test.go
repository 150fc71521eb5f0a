package monitor

import "testing"

func TestCanTransition_ForwardChain(t *testing.T) {
	t.Parallel()

	chain := []Phase{
		PhasePending,
		PhaseInitializing,
		PhaseScrapingNews,
		PhaseProcessingNews,
		PhaseScrapingSocial,
		PhaseProcessingSocial,
		PhaseUpdatingSourceHealth,
		PhasePersistingAlerts,
		PhaseCompleted,
	}
	for i := 0; i < len(chain)-1; i++ {
		if !CanTransition(chain[i], chain[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", chain[i], chain[i+1])
		}
	}
}

func TestCanTransition_NoSkipsOrBackwardSteps(t *testing.T) {
	t.Parallel()

	if CanTransition(PhaseInitializing, PhaseProcessingNews) {
		t.Fatalf("skipping a phase must be illegal")
	}
	if CanTransition(PhaseScrapingSocial, PhaseScrapingNews) {
		t.Fatalf("moving backwards must be illegal")
	}
}

func TestCanTransition_FailedAbsorbsEverythingNonTerminal(t *testing.T) {
	t.Parallel()

	for _, from := range []Phase{PhasePending, PhaseInitializing, PhaseScrapingNews, PhasePersistingAlerts} {
		if !CanTransition(from, PhaseFailed) {
			t.Fatalf("expected %s -> failed to be legal", from)
		}
	}
	if CanTransition(PhaseCompleted, PhaseFailed) {
		t.Fatalf("completed is terminal")
	}
	if CanTransition(PhaseFailed, PhaseInitializing) {
		t.Fatalf("failed is terminal")
	}
}

func TestProgress_MonotonicOverChain(t *testing.T) {
	t.Parallel()

	chain := []Phase{
		PhasePending,
		PhaseInitializing,
		PhaseScrapingNews,
		PhaseProcessingNews,
		PhaseScrapingSocial,
		PhaseProcessingSocial,
		PhaseUpdatingSourceHealth,
		PhasePersistingAlerts,
		PhaseCompleted,
	}
	last := -1
	for _, phase := range chain {
		if got := phase.Progress(); got <= last {
			t.Fatalf("progress must strictly increase, %s reports %d after %d", phase, got, last)
		} else {
			last = got
		}
	}
	if PhaseCompleted.Progress() != 100 {
		t.Fatalf("completed must report 100")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	if got := PhasePending.Status(); got != StatusPending {
		t.Fatalf("pending status: %q", got)
	}
	if got := PhaseScrapingNews.Status(); got != StatusRunning {
		t.Fatalf("mid-cycle status: %q", got)
	}
	if got := PhaseCompleted.Status(); got != StatusCompleted {
		t.Fatalf("completed status: %q", got)
	}
	if got := PhaseFailed.Status(); got != StatusFailed {
		t.Fatalf("failed status: %q", got)
	}
}
