// Package transcript holds the ordered segment sequence of a recording.
package transcript

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultWindow is the number of trailing segments fed to the summarizer.
const DefaultWindow = 60

// Segment is the recognized text for one chunk of audio. Times are in
// seconds from the start of the recording.
type Segment struct {
	T0         float64 `json:"t0"`
	T1         float64 `json:"t1"`
	Text       string  `json:"text"`
	Confidence float64 `json:"conf,omitempty"`
}

// Event announces a newly appended segment.
type Event struct {
	Segment Segment
	Index   int
}

// Store interface for transcript operations.
type Store interface {
	Append(seg Segment) int
	RecentWindow(max int) string
	FullText() string
	TimedText() string
	Segments() []Segment
	End() float64
	Len() int
	Reset()
	Events() <-chan Event
	Emit(event Event)
}

// MemoryStore keeps segments in memory for the active recording.
type MemoryStore struct {
	mu       sync.RWMutex
	segments []Segment
	eventsCh chan Event
}

// NewStore creates a new transcript store.
func NewStore(eventBuffer int) *MemoryStore {
	return &MemoryStore{eventsCh: make(chan Event, eventBuffer)}
}

// Append adds a segment at the end and returns its index. Segments are
// neither reordered nor rejected.
func (s *MemoryStore) Append(seg Segment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
	return len(s.segments) - 1
}

// RecentWindow joins the text of the last max segments with single spaces.
func (s *MemoryStore) RecentWindow(max int) string {
	if max <= 0 {
		max = DefaultWindow
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.segments) - max
	if start < 0 {
		start = 0
	}
	return joinText(s.segments[start:])
}

// FullText joins the text of every segment.
func (s *MemoryStore) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return joinText(s.segments)
}

// TimedText renders one "mm:ss–mm:ss text" line per segment.
func (s *MemoryStore) TimedText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TimedLines(s.segments)
}

// Segments returns a copy of all segments.
func (s *MemoryStore) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Segment, len(s.segments))
	copy(result, s.segments)
	return result
}

// End returns t1 of the last segment, or 0 when empty.
func (s *MemoryStore) End() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.segments) == 0 {
		return 0
	}
	return s.segments[len(s.segments)-1].T1
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Reset drops all segments for a new recording.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = nil
}

// Events returns the channel for segment events.
func (s *MemoryStore) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends a segment event (non-blocking).
func (s *MemoryStore) Emit(event Event) {
	select {
	case s.eventsCh <- event:
	default:
	}
}

func joinText(segs []Segment) string {
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = seg.Text
	}
	return strings.Join(parts, " ")
}

// TimedLines renders segments as "mm:ss–mm:ss text" lines.
func TimedLines(segs []Segment) string {
	lines := make([]string, len(segs))
	for i, seg := range segs {
		lines[i] = FormatTime(seg.T0) + "–" + FormatTime(seg.T1) + " " + seg.Text
	}
	return strings.Join(lines, "\n")
}

// FormatTime renders seconds as zero-padded mm:ss.
func FormatTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
