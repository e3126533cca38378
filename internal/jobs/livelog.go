package jobs

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LiveLog collects progress lines from a running job. Every stage of the
// pipeline appends to it and concurrent status readers snapshot it without
// blocking the writers. Appends are mirrored to the process log so an
// operator without API access can still follow along.
type LiveLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

func NewLiveLog() *LiveLog {
	return &LiveLog{}
}

// Append adds one line to the buffer.
func (l *LiveLog) Append(line string) {
	zap.S().Named("jobs").Info(line)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(line)
	l.buf.WriteByte('\n')
}

// Appendf formats and appends one line.
func (l *LiveLog) Appendf(format string, args ...any) {
	l.Append(fmt.Sprintf(format, args...))
}

// Snapshot returns the current content without clearing it.
func (l *LiveLog) Snapshot() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Take returns the content and clears the buffer. Called once when the job
// ends to freeze its output.
func (l *LiveLog) Take() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.buf.String()
	l.buf.Reset()
	return out
}
