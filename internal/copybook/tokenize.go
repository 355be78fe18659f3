package copybook

import (
	"strings"
	"unicode/utf8"
)

// Tokenize splits copybook text into level-01 blocks in source order.
//
// Lines before the first 01 line are dropped. Every other line lands in
// exactly one block, unchanged, so joining all blocks' lines with "\n"
// reproduces the input minus its preamble.
func Tokenize(text string) ([]Block, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCopybook
	}

	lines := strings.Split(text, "\n")

	var (
		blocks  []Block
		name    string
		start   = -1
		current []string
	)
	closeBlock := func() {
		if start < 0 {
			return
		}
		blocks = append(blocks, newBlock(name, start, current))
	}

	for i, line := range lines {
		if hdr, ok := RecordHeader(line); ok {
			closeBlock()
			name, start = hdr, i
			current = []string{line}
			continue
		}
		if start >= 0 {
			current = append(current, line)
		}
	}
	closeBlock()

	if len(blocks) == 0 {
		return nil, newNoRecordsFoundError(lines, utf8.RuneCountInString(text))
	}
	return blocks, nil
}
