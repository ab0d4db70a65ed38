package session

import (
	"testing"
	"time"

	"github.com/room4-2/agentwire/messages"
)

func TestTranscriptHydrateFiltersRoles(t *testing.T) {
	var tr Transcript
	tr.Append(NewMessage(RoleSystem, "stale", time.Now()))

	tr.Hydrate([]messages.HistoryMessage{
		{Role: "user", Text: "q1"},
		{Role: "tool", Text: "tool output"},
		{Role: "assistant", Text: "a1"},
		{Role: "system", Text: "sys"},
		{Role: "user", Text: "q2"},
	}, time.Now())

	got := tr.Messages()
	want := []struct {
		role Role
		text string
	}{
		{RoleUser, "q1"},
		{RoleAssistant, "a1"},
		{RoleUser, "q2"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%+v)", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].Content != w.text {
			t.Errorf("entry %d = %s/%q, want %s/%q", i, got[i].Role, got[i].Content, w.role, w.text)
		}
		if got[i].ID == "" {
			t.Errorf("entry %d has no id", i)
		}
	}
}

func TestTranscriptMessagesIsCopy(t *testing.T) {
	var tr Transcript
	tr.Append(NewMessage(RoleUser, "original", time.Now()))

	snapshot := tr.Messages()
	snapshot[0].Content = "mutated"

	if tr.Messages()[0].Content != "original" {
		t.Fatalf("Messages exposed internal storage")
	}
}

func TestTranscriptClear(t *testing.T) {
	var tr Transcript
	tr.Append(NewMessage(RoleUser, "x", time.Now()))
	tr.Clear()
	if tr.Len() != 0 {
		t.Fatalf("Len after Clear = %d", tr.Len())
	}
}
