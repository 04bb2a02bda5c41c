package frontier

import "testing"

func TestFrontier_EmptyPop(t *testing.T) {
	f := New()
	if _, ok := f.Pop(); ok {
		t.Error("expected Pop on empty frontier to return ok=false")
	}
}

func TestFrontier_ShallowerDepthFirst(t *testing.T) {
	f := New()
	f.Push(Entry{NodeID: "deep", Depth: 3})
	f.Push(Entry{NodeID: "shallow", Depth: 0})
	f.Push(Entry{NodeID: "mid", Depth: 1})

	order := []string{}
	for {
		e, ok := f.Pop()
		if !ok {
			break
		}
		order = append(order, e.NodeID)
	}

	want := []string{"shallow", "mid", "deep"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFrontier_FewerAttemptsFirstAtSameDepth(t *testing.T) {
	f := New()
	f.Push(Entry{NodeID: "retried", Depth: 0, Attempts: 2})
	f.Push(Entry{NodeID: "fresh", Depth: 0, Attempts: 0})

	first, _ := f.Pop()
	if first.NodeID != "fresh" {
		t.Errorf("first popped = %q, want fresh", first.NodeID)
	}
}

func TestFrontier_FIFOAtEqualPriority(t *testing.T) {
	f := New()
	f.Push(Entry{NodeID: "a", Depth: 0})
	f.Push(Entry{NodeID: "b", Depth: 0})
	f.Push(Entry{NodeID: "c", Depth: 0})

	first, _ := f.Pop()
	second, _ := f.Pop()
	third, _ := f.Pop()
	if first.NodeID != "a" || second.NodeID != "b" || third.NodeID != "c" {
		t.Errorf("got order %q, %q, %q; want a, b, c", first.NodeID, second.NodeID, third.NodeID)
	}
}

func TestFrontier_PopNRespectsLimit(t *testing.T) {
	f := New()
	f.Push(Entry{NodeID: "a"})
	f.Push(Entry{NodeID: "b"})
	f.Push(Entry{NodeID: "c"})

	got := f.PopN(2)
	if len(got) != 2 {
		t.Fatalf("len(PopN(2)) = %d, want 2", len(got))
	}
	if f.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.Len())
	}
}

func TestFrontier_PopNShortWhenExhausted(t *testing.T) {
	f := New()
	f.Push(Entry{NodeID: "only"})
	got := f.PopN(5)
	if len(got) != 1 {
		t.Fatalf("len(PopN(5)) = %d, want 1", len(got))
	}
}
