package session

import (
	"testing"
	"time"
)

func TestTranscript_CompleteFinalizesAndClears(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.now = func() time.Time { return at }

	tr.AppendUser("مرحبا ")
	tr.AppendUser("كيف حالك")
	tr.AppendModel("أنا بخير")

	user, model := tr.Live()
	if user != "مرحبا كيف حالك" || model != "أنا بخير" {
		t.Fatalf("Live = %q, %q", user, model)
	}

	turn := tr.Complete()
	if turn.User != "مرحبا كيف حالك" || turn.Model != "أنا بخير" || !turn.At.Equal(at) {
		t.Errorf("turn = %+v", turn)
	}
	if u, m := tr.Live(); u != "" || m != "" {
		t.Errorf("accumulators not cleared: %q, %q", u, m)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTranscript_HistoryOrderAndCopy(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	tr.AppendUser("one")
	tr.Complete()
	tr.AppendModel("two")
	tr.Complete()

	h := tr.History()
	if len(h) != 2 || h[0].User != "one" || h[1].Model != "two" {
		t.Fatalf("History = %+v", h)
	}
	h[0].User = "changed"
	if tr.History()[0].User != "one" {
		t.Error("History returned shared storage")
	}
}

func TestTranscript_EmptyTurn(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	turn := tr.Complete()
	if turn.User != "" || turn.Model != "" {
		t.Errorf("turn = %+v, want empty", turn)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTranscript_FragmentsAfterCompletionStartNextTurn(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	tr.AppendModel("first")
	first := tr.Complete()
	tr.AppendModel(" late")

	if first.Model != "first" || tr.History()[0].Model != "first" {
		t.Errorf("finalized turn changed: %+v", tr.History()[0])
	}
	if _, model := tr.Live(); model != " late" {
		t.Errorf("next turn = %q", model)
	}
}
