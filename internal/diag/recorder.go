package diag

import "strings"

// Entry is one recorded diagnostic.
type Entry struct {
	Severity Severity
	Message  string
}

// Recorder keeps every message it receives. Used by tests.
type Recorder struct {
	Entries []Entry
}

func (r *Recorder) Log(sev Severity, msg string) {
	r.Entries = append(r.Entries, Entry{Severity: sev, Message: msg})
}

// Count returns the number of entries at sev.
func (r *Recorder) Count(sev Severity) int {
	n := 0
	for _, e := range r.Entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

// Contains reports whether any entry at sev contains substr.
func (r *Recorder) Contains(sev Severity, substr string) bool {
	for _, e := range r.Entries {
		if e.Severity == sev && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.Entries = r.Entries[:0]
}
