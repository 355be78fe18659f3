// Package copybook splits COBOL copybooks into level-01 record blocks, picks
// the block that describes the data record, and cuts that block back out of
// the original text.
package copybook

import "strings"

// metadataKeywords flag record names that describe lookup tables, rule sets
// or report layouts rather than a data record.
var metadataKeywords = []string{
	"TYPES",
	"VALIDATION",
	"RULES",
	"THRESHOLDS",
	"FLAGS",
	"FIELDS",
	"REPORT",
	"CONFIG",
	"CONSTANT",
}

// Block is one level-01 record definition. All fields are computed by
// Tokenize and must be treated as read-only afterwards.
type Block struct {
	Name      string   `json:"name" yaml:"name"`
	StartLine int      `json:"start_line" yaml:"start_line"`
	Lines     []string `json:"-" yaml:"-"`

	// FieldCount counts lines with a level number of 05 or above.
	FieldCount int `json:"field_count" yaml:"field_count"`
	// EstimatedByteLength sums PIC X(n) and PIC 9(n) clauses. It is a
	// scoring aid only; the decoder owns the real layout.
	EstimatedByteLength int  `json:"estimated_byte_length" yaml:"estimated_byte_length"`
	HasValueClauses     bool `json:"has_value_clauses" yaml:"has_value_clauses"`
	IsMetadata          bool `json:"is_metadata" yaml:"is_metadata"`

	// MetadataReasons lists the signals that set IsMetadata.
	MetadataReasons []string `json:"metadata_reasons,omitempty" yaml:"metadata_reasons,omitempty"`
}

// newBlock builds a Block and derives its features from lines.
func newBlock(name string, start int, lines []string) Block {
	b := Block{
		Name:      name,
		StartLine: start,
		Lines:     lines,
	}

	for i, line := range lines {
		if i > 0 && levelNumber(line) >= 5 {
			b.FieldCount++
		}
		b.EstimatedByteLength += picLength(line)
		if hasValueClause(line) {
			b.HasValueClauses = true
		}
	}

	if b.HasValueClauses {
		b.MetadataReasons = append(b.MetadataReasons, "value-clause")
	}
	upper := strings.ToUpper(name)
	for _, kw := range metadataKeywords {
		if strings.Contains(upper, kw) {
			b.MetadataReasons = append(b.MetadataReasons, "name-keyword:"+kw)
		}
	}
	b.IsMetadata = len(b.MetadataReasons) > 0

	return b
}

// Text returns the block's lines joined as they appeared in the source.
func (b Block) Text() string {
	return strings.Join(b.Lines, "\n")
}
