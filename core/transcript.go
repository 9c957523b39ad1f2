package conversation

import (
	"strings"
	"sync"
)

type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerModel  Speaker = "model"
	SpeakerSystem Speaker = "system"
)

type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailure ActionStatus = "failure"
)

// TranscriptEntry is one utterance or action record. Entries are append-only
// except that an entry with an ActionID is updated in place when its result
// arrives.
type TranscriptEntry struct {
	ID           int64
	Speaker      Speaker
	Text         string
	ActionID     string
	ActionStatus ActionStatus
}

// transcript batches token-level transcription deltas into utterance-level
// entries. Deltas accumulate in per-speaker buffers and only become entries
// when a turn completes, so the visible transcript does not flicker per
// token.
type transcript struct {
	mu sync.Mutex

	nextID  int64
	entries []TranscriptEntry

	userBuffer  string
	modelBuffer string
}

func newTranscript() *transcript {
	return &transcript{}
}

func (t *transcript) addUserDelta(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userBuffer += delta
}

func (t *transcript) addModelDelta(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelBuffer += delta
}

// flushTurn appends one entry per non-empty buffer, user speech first, and
// clears both buffers. It reports how many entries were appended.
func (t *transcript) flushTurn() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	appended := 0
	if text := strings.TrimSpace(t.userBuffer); text != "" {
		t.appendLocked(TranscriptEntry{Speaker: SpeakerUser, Text: text})
		appended++
	}
	if text := strings.TrimSpace(t.modelBuffer); text != "" {
		t.appendLocked(TranscriptEntry{Speaker: SpeakerModel, Text: text})
		appended++
	}
	t.userBuffer = ""
	t.modelBuffer = ""
	return appended
}

func (t *transcript) appendAction(actionID, text string) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.appendLocked(TranscriptEntry{
		Speaker:      SpeakerSystem,
		Text:         text,
		ActionID:     actionID,
		ActionStatus: ActionPending,
	})
}

// updateAction resolves the entry matching actionID. It reports whether a
// matching entry was found.
func (t *transcript) updateAction(actionID string, status ActionStatus, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ActionID == actionID {
			t.entries[i].ActionStatus = status
			if text != "" {
				t.entries[i].Text = text
			}
			return true
		}
	}
	return false
}

func (t *transcript) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.userBuffer = ""
	t.modelBuffer = ""
}

func (t *transcript) snapshot() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]TranscriptEntry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// appendLocked assigns the next id and stores the entry. The returned value
// is exactly what landed in the transcript.
func (t *transcript) appendLocked(entry TranscriptEntry) TranscriptEntry {
	t.nextID++
	entry.ID = t.nextID
	t.entries = append(t.entries, entry)
	return entry
}
