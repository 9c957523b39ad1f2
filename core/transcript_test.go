package conversation

import "testing"

func TestFlushTurnBatchesDeltasIntoEntries(t *testing.T) {
	tr := newTranscript()
	tr.addUserDelta("Hello ")
	tr.addUserDelta("there")
	tr.addModelDelta("Hi! How ")
	tr.addModelDelta("can I help?")

	if appended := tr.flushTurn(); appended != 2 {
		t.Fatalf("expected two entries appended, got %d", appended)
	}

	entries := tr.snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Speaker != SpeakerUser || entries[0].Text != "Hello there" {
		t.Fatalf("unexpected user entry: %+v", entries[0])
	}
	if entries[1].Speaker != SpeakerModel || entries[1].Text != "Hi! How can I help?" {
		t.Fatalf("unexpected model entry: %+v", entries[1])
	}

	// Buffers cleared: another flush appends nothing.
	if appended := tr.flushTurn(); appended != 0 {
		t.Fatalf("expected empty flush to append nothing, got %d", appended)
	}
}

func TestFlushTurnSkipsWhitespaceOnlyBuffers(t *testing.T) {
	tr := newTranscript()
	tr.addUserDelta("   ")
	if appended := tr.flushTurn(); appended != 0 {
		t.Fatalf("expected whitespace-only buffer to be dropped, got %d entries", appended)
	}
}

func TestActionEntryUpdatedInPlace(t *testing.T) {
	tr := newTranscript()
	tr.addUserDelta("run it")
	tr.flushTurn()

	entry := tr.appendAction("a1", "Running action: triggerWebhook")
	if entry.ActionStatus != ActionPending {
		t.Fatalf("expected action entry to start pending, got %q", entry.ActionStatus)
	}

	if !tr.updateAction("a1", ActionSuccess, "Webhook succeeded") {
		t.Fatalf("expected the action entry to be found")
	}

	entries := tr.snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	resolved := entries[1]
	if resolved.ActionStatus != ActionSuccess || resolved.Text != "Webhook succeeded" {
		t.Fatalf("expected the entry resolved in place, got %+v", resolved)
	}
	if resolved.ID != 2 {
		t.Fatalf("expected the entry to keep its id, got %d", resolved.ID)
	}

	if tr.updateAction("missing", ActionFailure, "") {
		t.Fatalf("expected unknown action id to report no match")
	}
}

func TestAppendActionReturnsStoredEntry(t *testing.T) {
	tr := newTranscript()

	returned := tr.appendAction("a1", "Running action: triggerWebhook")

	entries := tr.snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0] != returned {
		t.Fatalf("expected the returned entry to match the stored one, got %+v vs %+v", returned, entries[0])
	}
	if returned.Speaker != SpeakerSystem || returned.ActionID != "a1" || returned.ActionStatus != ActionPending {
		t.Fatalf("unexpected action entry: %+v", returned)
	}
}

func TestEntryIDsIncreaseAcrossClears(t *testing.T) {
	tr := newTranscript()
	tr.addUserDelta("one")
	tr.flushTurn()
	tr.clear()
	tr.addUserDelta("two")
	tr.flushTurn()

	entries := tr.snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected a single entry after clear, got %d", len(entries))
	}
	if entries[0].ID != 2 {
		t.Fatalf("expected ids to keep increasing across clears, got %d", entries[0].ID)
	}
}
