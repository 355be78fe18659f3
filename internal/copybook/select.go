package copybook

import (
	"fmt"
	"strings"
)

// Rule names the selection strategy that produced a Decision.
type Rule string

const (
	RuleExplicitName  Rule = "explicit-name"
	RuleDataCandidate Rule = "data-candidate"
	RuleLargestBlock  Rule = "largest-block"
	RuleFirstBlock    Rule = "first-block"
)

// Decision is the outcome of Select: which block was chosen and why.
type Decision struct {
	Block  Block  `json:"block" yaml:"block"`
	Index  int    `json:"index" yaml:"index"`
	Rule   Rule   `json:"rule" yaml:"rule"`
	Reason string `json:"reason" yaml:"reason"`
}

// strategy tries to pick a block. ok is false when the strategy does not apply.
type strategy struct {
	rule Rule
	pick func(blocks []Block, hint string) (idx int, reason string, ok bool)
}

// strategies run in order; the first one that applies wins.
var strategies = []strategy{
	{RuleExplicitName, pickExplicitName},
	{RuleDataCandidate, pickDataCandidate},
	{RuleLargestBlock, pickLargestBlock},
	{RuleFirstBlock, pickFirstBlock},
}

// Select chooses the block that describes the data record. explicitName is an
// advisory hint: a name that matches nothing (or several blocks) is ignored
// and the heuristics decide.
func Select(blocks []Block, explicitName string) (Decision, error) {
	if len(blocks) == 0 {
		return Decision{}, &NoRecordsFoundError{}
	}
	hint := strings.TrimSpace(explicitName)
	for _, s := range strategies {
		idx, reason, ok := s.pick(blocks, hint)
		if !ok {
			continue
		}
		return Decision{
			Block:  blocks[idx],
			Index:  idx,
			Rule:   s.rule,
			Reason: reason,
		}, nil
	}
	// pickFirstBlock always applies to a non-empty slice.
	panic("copybook: no selection strategy applied")
}

// ClassifyAndSelect is Select without the decision metadata.
func ClassifyAndSelect(blocks []Block, explicitName string) (Block, error) {
	d, err := Select(blocks, explicitName)
	if err != nil {
		return Block{}, err
	}
	return d.Block, nil
}

func pickExplicitName(blocks []Block, hint string) (int, string, bool) {
	if hint == "" {
		return 0, "", false
	}
	match, n := -1, 0
	for i, b := range blocks {
		if strings.EqualFold(b.Name, hint) {
			if match < 0 {
				match = i
			}
			n++
		}
	}
	if n != 1 {
		return 0, "", false
	}
	return match, fmt.Sprintf("record name %q requested explicitly", hint), true
}

func pickDataCandidate(blocks []Block, _ string) (int, string, bool) {
	best, candidates := -1, 0
	for i, b := range blocks {
		if b.IsMetadata {
			continue
		}
		candidates++
		if best < 0 || b.FieldCount > blocks[best].FieldCount {
			best = i
		}
	}
	switch {
	case candidates == 0:
		return 0, "", false
	case candidates == 1:
		return best, "only block not flagged as metadata", true
	default:
		return best, fmt.Sprintf("most fields (%d) of %d non-metadata blocks", blocks[best].FieldCount, candidates), true
	}
}

func pickLargestBlock(blocks []Block, _ string) (int, string, bool) {
	best, tied := 0, true
	for i, b := range blocks[1:] {
		if b.FieldCount != blocks[0].FieldCount {
			tied = false
		}
		if b.FieldCount > blocks[best].FieldCount {
			best = i + 1
		}
	}
	if tied && len(blocks) > 1 {
		return 0, "", false
	}
	return best, fmt.Sprintf("all blocks flagged as metadata; most fields (%d)", blocks[best].FieldCount), true
}

func pickFirstBlock(blocks []Block, _ string) (int, string, bool) {
	if len(blocks) == 0 {
		return 0, "", false
	}
	return 0, "no discriminating signal; first block in source order", true
}
