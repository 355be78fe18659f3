package copybook

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// headerPattern matches a level-01 record line after normalization.
	headerPattern = regexp.MustCompile(`^\s*01\s+([A-Za-z0-9-]+)`)
	// levelPattern captures the leading level number of any data line.
	levelPattern = regexp.MustCompile(`^(\d{1,2})(?:\s|$)`)
	// picPattern only recognizes the single-symbol repeat forms PIC X(n) and PIC 9(n).
	// Anything trailing the closing paren other than whitespace or a period
	// (V99, COMP-3 glued on, etc.) disqualifies the clause.
	picPattern = regexp.MustCompile(`(?i)(?:^|\s)PIC\s+[X9]\((\d+)\)(?:[\s.]|$)`)
	// valuePattern matches a VALUE/VALUES clause keyword as a standalone token,
	// so data names such as VALUE-DATE or CUST-VALUE do not count.
	valuePattern = regexp.MustCompile(`(?i)(?:^|\s)VALUES?(?:\s|$)`)
)

// NormalizeLine strips leading whitespace and then a single leading '*'
// comment marker together with the whitespace that follows it.
//
// Some copybooks carry the authoritative record layout inside comment lines,
// so block detection treats "* 01 FOO." exactly like "01 FOO.". The tokenizer
// and the extractor both go through this function; they must agree on block
// boundaries.
func NormalizeLine(line string) string {
	s := strings.TrimLeft(line, " \t\r\f\v")
	if strings.HasPrefix(s, "*") {
		s = strings.TrimLeft(s[1:], " \t\r\f\v")
	}
	return s
}

// RecordHeader reports whether line opens a level-01 record and returns the
// record name as written.
func RecordHeader(line string) (string, bool) {
	m := headerPattern.FindStringSubmatch(NormalizeLine(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// levelNumber returns the level number a line starts with, or -1.
func levelNumber(line string) int {
	m := levelPattern.FindStringSubmatch(NormalizeLine(line))
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// picLength sums PIC X(n) / PIC 9(n) lengths on a line. Other PICTURE
// forms contribute nothing.
func picLength(line string) int {
	total := 0
	for _, m := range picPattern.FindAllStringSubmatch(line, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

func hasValueClause(line string) bool {
	return valuePattern.MatchString(line)
}
