package stats

import "testing"

func TestTracker_Counters(t *testing.T) {
	tr := New()
	tr.RecordCallAttempt()
	tr.RecordCallAttempt()
	tr.RecordCallSuccess()
	tr.RecordCallFailure(FailureWebhookTimeout)
	tr.RecordGraphGrowth(2, 3)
	tr.RecordTerminal()
	tr.RecordLLMParseRetry()

	snap := tr.Snapshot()
	if snap.CallsAttempted != 2 {
		t.Errorf("CallsAttempted = %d, want 2", snap.CallsAttempted)
	}
	if snap.CallsSucceeded != 1 {
		t.Errorf("CallsSucceeded = %d, want 1", snap.CallsSucceeded)
	}
	if snap.CallsFailed != 1 || snap.FailuresByKind[FailureWebhookTimeout] != 1 {
		t.Errorf("failure counters = %+v", snap)
	}
	if snap.NodesAdded != 2 || snap.EdgesAdded != 3 {
		t.Errorf("growth counters = %+v", snap)
	}
	if snap.TerminalsMarked != 1 {
		t.Errorf("TerminalsMarked = %d, want 1", snap.TerminalsMarked)
	}
	if snap.LLMParseRetries != 1 {
		t.Errorf("LLMParseRetries = %d, want 1", snap.LLMParseRetries)
	}
}

func TestTracker_PlateauDetection(t *testing.T) {
	tr := New(WithPlateauWindow(3))

	for i := 0; i < 2; i++ {
		tr.RecordGraphGrowth(0, 0)
	}
	if tr.PlateauReached() {
		t.Fatal("plateau should not be reached before window elapses")
	}

	tr.RecordGraphGrowth(0, 0)
	if !tr.PlateauReached() {
		t.Fatal("expected plateau after window consecutive no-growth calls")
	}
}

func TestTracker_GrowthResetsPlateauCounter(t *testing.T) {
	tr := New(WithPlateauWindow(2))
	tr.RecordGraphGrowth(0, 0)
	tr.RecordGraphGrowth(1, 0)
	tr.RecordGraphGrowth(0, 0)
	if tr.PlateauReached() {
		t.Fatal("a growth call should reset the plateau streak")
	}
}

func TestTracker_SetPlateauWindow(t *testing.T) {
	tr := New(WithPlateauWindow(5))
	tr.RecordGraphGrowth(0, 0)
	tr.RecordGraphGrowth(0, 0)
	if tr.PlateauReached() {
		t.Fatal("plateau should not be reached yet at window 5")
	}

	tr.SetPlateauWindow(2)
	if !tr.PlateauReached() {
		t.Fatal("expected plateau reached once a shrunk window is applied live")
	}
}
