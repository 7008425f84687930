package runner

import "fmt"

// Entry is one flag of the Record.
type Entry struct {
	Name        string
	Label       string
	Remediation string
	Passed      bool
}

// Record holds the outcome of one run: a flag per check, in plan order,
// and the errors reported along the way. Flags start false and are only
// ever set, never reset.
type Record struct {
	entries []Entry
	index   map[string]int
	errors  []string
}

// NewRecord creates a Record with one unset flag per entry.
func NewRecord(entries []Entry) *Record {
	r := &Record{
		entries: make([]Entry, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		e.Passed = false
		r.entries[i] = e
		r.index[e.Name] = i
	}
	return r
}

// Pass sets the flag for name.
func (r *Record) Pass(name string) {
	if i, ok := r.index[name]; ok {
		r.entries[i].Passed = true
	}
}

// Fail appends one error naming the check. The flag stays false.
func (r *Record) Fail(name string, err error) {
	label := name
	if i, ok := r.index[name]; ok {
		label = r.entries[i].Label
	}
	r.errors = append(r.errors, fmt.Sprintf("%s: %v", label, err))
}

// Flag reports whether the check named name passed.
func (r *Record) Flag(name string) bool {
	i, ok := r.index[name]
	return ok && r.entries[i].Passed
}

// Entries returns a copy of the flags in plan order.
func (r *Record) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Errors returns a copy of the error list in the order it was built.
func (r *Record) Errors() []string {
	out := make([]string, len(r.errors))
	copy(out, r.errors)
	return out
}

// Passed returns the number of set flags.
func (r *Record) Passed() int {
	n := 0
	for _, e := range r.entries {
		if e.Passed {
			n++
		}
	}
	return n
}

// Total returns the number of flags.
func (r *Record) Total() int {
	return len(r.entries)
}

// ExitCode is 0 when at least threshold checks passed, 1 otherwise.
func (r *Record) ExitCode(threshold int) int {
	if r.Passed() >= threshold {
		return 0
	}
	return 1
}
