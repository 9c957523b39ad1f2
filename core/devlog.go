package conversation

import (
	"fmt"
	"sync"
	"time"
)

const devlogCapacity = 100

// devlog keeps the most recent diagnostic lines for display alongside the
// transcript.
type devlog struct {
	mu    sync.Mutex
	lines []string
}

func (l *devlog) add(line string) string {
	stamped := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), line)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, stamped)
	if len(l.lines) > devlogCapacity {
		l.lines = l.lines[len(l.lines)-devlogCapacity:]
	}
	return stamped
}

func (l *devlog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := make([]string, len(l.lines))
	copy(lines, l.lines)
	return lines
}
