package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var (
	ErrOverlappingEdit = errors.New("edit overlaps a previous edit")
	ErrEditOutOfRange  = errors.New("edit range is outside of the source")
)

// Change represents a text replacement in a file.
// Start and End are byte offsets in the original file content.
type Change struct {
	Start int
	End   int
	Text  string
}

// EditBuffer collects replacements against an immutable original source and
// renders the edited text and its source map. Offsets passed to it always
// refer to the original source, regardless of edits queued before.
type EditBuffer struct {
	original string
	changes  []Change // sorted by Start, never overlapping
}

func NewEditBuffer(original []byte) *EditBuffer {
	return &EditBuffer{original: string(original)}
}

// Overwrite replaces original[start:end] with text.
func (b *EditBuffer) Overwrite(start, end int, text string) error {
	if start < 0 || end > len(b.original) || start >= end {
		return fmt.Errorf("[%d, %d) of %d bytes: %w", start, end, len(b.original), ErrEditOutOfRange)
	}
	idx := sort.Search(len(b.changes), func(i int) bool {
		return b.changes[i].Start >= start
	})
	if idx > 0 && b.changes[idx-1].End > start {
		return fmt.Errorf("[%d, %d) and [%d, %d): %w", start, end, b.changes[idx-1].Start, b.changes[idx-1].End, ErrOverlappingEdit)
	}
	if idx < len(b.changes) && b.changes[idx].Start < end {
		return fmt.Errorf("[%d, %d) and [%d, %d): %w", start, end, b.changes[idx].Start, b.changes[idx].End, ErrOverlappingEdit)
	}
	b.changes = append(b.changes, Change{})
	copy(b.changes[idx+1:], b.changes[idx:])
	b.changes[idx] = Change{Start: start, End: end, Text: text}
	return nil
}

// Remove deletes original[start:end].
func (b *EditBuffer) Remove(start, end int) error {
	return b.Overwrite(start, end, "")
}

func (b *EditBuffer) HasChanged() bool {
	return len(b.changes) > 0
}

// Changes returns a copy of the queued changes in source order.
func (b *EditBuffer) Changes() []Change {
	out := make([]Change, len(b.changes))
	copy(out, b.changes)
	return out
}

func (b *EditBuffer) Original() string {
	return b.original
}

// String renders the edited text. The original is split into sections
// between changes and joined once.
func (b *EditBuffer) String() string {
	if len(b.changes) == 0 {
		return b.original
	}
	var builder strings.Builder
	builder.Grow(len(b.original))
	lastPos := 0
	for _, c := range b.changes {
		builder.WriteString(b.original[lastPos:c.Start])
		builder.WriteString(c.Text)
		lastPos = c.End
	}
	builder.WriteString(b.original[lastPos:])
	return builder.String()
}

// WriteFileChanges writes rendered contents grouped by file path.
func WriteFileChanges(contentsByFile map[string]string) error {
	for filePath, contents := range contentsByFile {
		if err := os.WriteFile(DenormalizePathForOS(filePath), []byte(contents), 0644); err != nil {
			return err
		}
	}
	return nil
}
