// Package assertion records the checks a scenario makes.
package assertion

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// AssertionFailure is returned by a failed check.
type AssertionFailure struct {
	Message  string
	Expected any
	Actual   any
}

func (f *AssertionFailure) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %v, got %v", f.Message, f.Expected, f.Actual)
}

// IsAssertionFailure checks if the error is or wraps an AssertionFailure
func IsAssertionFailure(err error) bool {
	var failure *AssertionFailure
	return err != nil && errors.As(err, &failure)
}

// Entry is one recorded check.
type Entry struct {
	Message string
	Passed  bool
	Detail  string
	At      time.Time
}

// Log accumulates the checks of a single scenario. It belongs to one worker and is
// not safe for concurrent use.
type Log struct {
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) record(msg string, passed bool, expected, actual any) error {
	e := Entry{Message: msg, Passed: passed, At: time.Now()}
	if !passed {
		e.Detail = fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	l.entries = append(l.entries, e)
	if passed {
		return nil
	}
	return errors.WithStack(&AssertionFailure{Message: msg, Expected: expected, Actual: actual})
}

// Equal checks that expected and actual are equal.
func (l *Log) Equal(expected, actual any, msg string) error {
	return l.record(msg, assert.ObjectsAreEqual(expected, actual), expected, actual)
}

// Contains checks that s contains substr.
func (l *Log) Contains(s, substr, msg string) error {
	return l.record(msg, strings.Contains(s, substr), fmt.Sprintf("text containing %q", substr), s)
}

// True checks that cond holds.
func (l *Log) True(cond bool, msg string) error {
	return l.record(msg, cond, true, cond)
}

// Entries returns a copy of the recorded checks.
func (l *Log) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Failed reports how many checks failed.
func (l *Log) Failed() int {
	n := 0
	for _, e := range l.entries {
		if !e.Passed {
			n++
		}
	}
	return n
}

func (l *Log) Len() int { return len(l.entries) }

// Clear drops all entries.
func (l *Log) Clear() {
	l.entries = nil
}
