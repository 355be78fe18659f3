package copybook

import "strings"

// ExtractFragment returns the lines of the first block named name (compared
// case-insensitively), from its 01 line up to the next 01 line or the end of
// text. Lines are emitted verbatim. If no such block exists, text is returned
// unchanged.
func ExtractFragment(text, name string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if hdr, ok := RecordHeader(line); ok && strings.EqualFold(hdr, name) {
			return sliceBlock(lines, i)
		}
	}
	return text
}

// ExtractBlock cuts b out of text using its recorded start line, which keeps
// duplicate record names apart. It falls back to ExtractFragment when text no
// longer has b's header at that line.
func ExtractBlock(text string, b Block) string {
	lines := strings.Split(text, "\n")
	if b.StartLine >= 0 && b.StartLine < len(lines) {
		if hdr, ok := RecordHeader(lines[b.StartLine]); ok && strings.EqualFold(hdr, b.Name) {
			return sliceBlock(lines, b.StartLine)
		}
	}
	return ExtractFragment(text, b.Name)
}

func sliceBlock(lines []string, start int) string {
	end := len(lines)
	for j := start + 1; j < len(lines); j++ {
		if _, ok := RecordHeader(lines[j]); ok {
			end = j
			break
		}
	}
	return strings.Join(lines[start:end], "\n")
}
