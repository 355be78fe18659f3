package copybook

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// memberExtensions are the file suffixes indexed as COPY members. An empty
// suffix covers members stored without an extension, as on a PDS export.
var memberExtensions = map[string]bool{
	".cpy": true,
	".cob": true,
	".cbl": true,
	".txt": true,
	"":     true,
}

// Proprietary members that are never shipped with application copybooks.
var systemMembers = map[string]bool{
	"DFHAID":      true,
	"DFHBMSCA":    true,
	"DFHATTR":     true,
	"DFHEIBLK":    true,
	"DFHCOMMAREA": true,
	"SQLCA":       true,
}

const maxCopyDepth = 10

var (
	copyPattern      = regexp.MustCompile(`(?i)^(?:\d{6})?\s*COPY\s+["']?([A-Za-z0-9_-]+)["']?`)
	replacingPattern = regexp.MustCompile(`(?is)(LEADING\s+|TRAILING\s+)?==(.*?)==\s*BY\s*==(.*?)==`)
	wordPattern      = regexp.MustCompile(`\S+`)
)

// Resolver inlines COPY members into copybook text before analysis.
// It is not safe for concurrent use; Expand records warnings on the receiver.
type Resolver struct {
	members  map[string][]string
	resolved []string
	warnings []string
}

// NewResolver indexes COPY members found directly under dirs on fs. Member
// names are the upper-cased base names without extension. When two
// directories hold the same member, the first directory wins.
func NewResolver(fs afero.Fs, dirs ...string) (*Resolver, error) {
	r := &Resolver{members: make(map[string][]string)}
	for _, dir := range dirs {
		infos, err := afero.ReadDir(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("read include dir %s: %w", dir, err)
		}
		for _, fi := range infos {
			if fi.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(fi.Name()))
			if !memberExtensions[ext] {
				continue
			}
			name := strings.ToUpper(strings.TrimSuffix(fi.Name(), filepath.Ext(fi.Name())))
			if _, dup := r.members[name]; dup {
				continue
			}
			data, err := afero.ReadFile(fs, filepath.Join(dir, fi.Name()))
			if err != nil {
				return nil, fmt.Errorf("read member %s: %w", fi.Name(), err)
			}
			r.members[name] = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		}
	}
	return r, nil
}

// Members returns the number of indexed COPY members.
func (r *Resolver) Members() int { return len(r.members) }

// Resolved lists member names inlined by Expand, in expansion order.
func (r *Resolver) Resolved() []string { return r.resolved }

// Warnings lists COPY statements Expand could not satisfy.
func (r *Resolver) Warnings() []string { return r.warnings }

// Expand replaces COPY statements in text with the referenced members.
// Unknown members are kept as comment lines so block boundaries are
// unaffected.
func (r *Resolver) Expand(text string) string {
	r.resolved, r.warnings = nil, nil
	return strings.Join(r.expand(strings.Split(text, "\n"), 0), "\n")
}

func (r *Resolver) expand(lines []string, depth int) []string {
	if depth > maxCopyDepth {
		r.warnings = append(r.warnings, "COPY nesting exceeds max depth")
		return lines
	}

	var out []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if isCommentLine(line) || !copyPattern.MatchString(line) {
			out = append(out, line)
			continue
		}

		// A COPY statement runs until its terminating period.
		stmt := []string{line}
		joined := strings.TrimSpace(line)
		for !strings.HasSuffix(joined, ".") && i+1 < len(lines) {
			i++
			stmt = append(stmt, lines[i])
			joined += " " + strings.TrimSpace(lines[i])
		}

		name := strings.ToUpper(copyPattern.FindStringSubmatch(joined)[1])
		body, ok := r.members[name]
		if !ok {
			if systemMembers[name] {
				r.warnings = append(r.warnings, fmt.Sprintf("system member %s not available (skipped)", name))
			} else {
				r.warnings = append(r.warnings, fmt.Sprintf("member %s not found (skipped)", name))
			}
			for _, s := range stmt {
				out = append(out, commentOut(s))
			}
			continue
		}

		r.resolved = append(r.resolved, name)
		inlined := make([]string, len(body))
		copy(inlined, body)
		if reps := parseReplacing(joined); len(reps) > 0 {
			for k := range inlined {
				inlined[k] = applyReplacing(inlined[k], reps)
			}
		}
		out = append(out, r.expand(inlined, depth+1)...)
	}
	return out
}

type replacement struct {
	mode     string // "", "LEADING" or "TRAILING"
	from, to string
	exact    *regexp.Regexp
}

func parseReplacing(stmt string) []replacement {
	idx := strings.Index(strings.ToUpper(stmt), "REPLACING")
	if idx < 0 {
		return nil
	}
	var reps []replacement
	for _, m := range replacingPattern.FindAllStringSubmatch(stmt[idx+len("REPLACING"):], -1) {
		rep := replacement{
			mode: strings.ToUpper(strings.TrimSpace(m[1])),
			from: strings.TrimSpace(m[2]),
			to:   strings.TrimSpace(m[3]),
		}
		if rep.from == "" {
			continue
		}
		if rep.mode == "" {
			rep.exact = regexp.MustCompile("(?i)" + regexp.QuoteMeta(rep.from))
		}
		reps = append(reps, rep)
	}
	return reps
}

// applyReplacing matches pseudo-text case-insensitively, like COBOL words.
func applyReplacing(line string, reps []replacement) string {
	for _, rep := range reps {
		switch rep.mode {
		case "LEADING", "TRAILING":
			line = replaceAffix(line, rep)
		default:
			line = rep.exact.ReplaceAllLiteralString(line, rep.to)
		}
	}
	return line
}

// replaceAffix rewrites the prefix or suffix of each word in place, so
// column alignment and trailing periods survive.
func replaceAffix(line string, rep replacement) string {
	return wordPattern.ReplaceAllStringFunc(line, func(w string) string {
		word := strings.TrimSuffix(w, ".")
		dot := w[len(word):]
		switch rep.mode {
		case "LEADING":
			if n, ok := foldPrefix(word, rep.from); ok {
				return rep.to + word[n:] + dot
			}
		case "TRAILING":
			if n, ok := foldSuffix(word, rep.from); ok {
				return word[:len(word)-n] + rep.to + dot
			}
		}
		return w
	})
}

// foldPrefix reports whether s starts with p under case folding and returns
// the byte length of the matching prefix of s.
func foldPrefix(s, p string) (int, bool) {
	i := 0
	for range utf8.RuneCountInString(p) {
		if i >= len(s) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i, strings.EqualFold(s[:i], p)
}

// foldSuffix is foldPrefix for the end of s.
func foldSuffix(s, p string) (int, bool) {
	i := len(s)
	for range utf8.RuneCountInString(p) {
		if i <= 0 {
			return 0, false
		}
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return len(s) - i, strings.EqualFold(s[i:], p)
}

// indicator returns the column-7 indicator of a fixed-format line, whose
// columns 1-6 hold only a sequence number or blanks.
func indicator(line string) (byte, bool) {
	if len(line) < 7 || strings.Trim(line[:6], "0123456789 ") != "" {
		return 0, false
	}
	return line[6], true
}

// isCommentLine reports fixed-format comments ('*' or '/' indicator) and
// free-format lines that start with '*'.
func isCommentLine(line string) bool {
	if c, ok := indicator(line); ok && (c == '*' || c == '/') {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(line), "*")
}

// commentOut turns a statement into a comment line: column 7 for
// fixed-format source, otherwise a '*' before the first non-blank.
func commentOut(line string) string {
	if c, ok := indicator(line); ok && c == ' ' {
		return line[:6] + "*" + line[7:]
	}
	trimmed := strings.TrimLeft(line, " \t")
	return line[:len(line)-len(trimmed)] + "* " + trimmed
}
