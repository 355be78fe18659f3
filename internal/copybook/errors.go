package copybook

import (
	"errors"
	"fmt"
)

// ErrEmptyCopybook is returned when the input is empty or whitespace only.
var ErrEmptyCopybook = errors.New("copybook is empty")

// ErrNoRecordsFound is the sentinel matched by *NoRecordsFoundError.
var ErrNoRecordsFound = errors.New("no level-01 records found")

// excerptLines bounds how much of the input a NoRecordsFoundError keeps.
const excerptLines = 20

// NoRecordsFoundError reports a copybook that contains no level-01 record.
// It carries enough of the input to diagnose the failure without re-reading
// the source.
type NoRecordsFoundError struct {
	Excerpt   []string
	LineCount int
	CharCount int
}

func newNoRecordsFoundError(lines []string, charCount int) *NoRecordsFoundError {
	n := len(lines)
	if n > excerptLines {
		n = excerptLines
	}
	excerpt := make([]string, n)
	copy(excerpt, lines[:n])
	return &NoRecordsFoundError{
		Excerpt:   excerpt,
		LineCount: len(lines),
		CharCount: charCount,
	}
}

func (e *NoRecordsFoundError) Error() string {
	return fmt.Sprintf("%s (%d lines, %d chars)", ErrNoRecordsFound, e.LineCount, e.CharCount)
}

func (e *NoRecordsFoundError) Is(target error) bool {
	return target == ErrNoRecordsFound
}
