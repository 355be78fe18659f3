package copybook

import (
	"strings"
	"testing"
)

func TestExtractFragment(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		record string
		want   string
	}{
		{
			name:   "whole input",
			src:    customerRecord,
			record: "CUSTOMER-RECORD",
			want:   customerRecord,
		},
		{
			name:   "last block keeps trailing newline",
			src:    rulesThenCustomer,
			record: "customer-record",
			want: "       01 CUSTOMER-RECORD.\n" +
				"          05 CUST-ID        PIC 9(8).\n" +
				"          05 CUST-NAME      PIC X(30).\n" +
				"          05 CUST-CITY      PIC X(20).\n" +
				"          05 CUST-ZIP       PIC 9(5).\n",
		},
		{
			name:   "middle block stops before next header",
			src:    rulesThenCustomer,
			record: "VALIDATION-RULES",
			want: "       01 VALIDATION-RULES.\n" +
				"          05 STATUS-CODE    PIC X(6) VALUE \"ACTIVE\".",
		},
		{
			name:   "commented header is a boundary but emitted verbatim",
			src:    "01 A-REC.\n  05 X PIC X(1).\n      * 01 B-REC.\n      *   05 Y PIC X(2).\n",
			record: "B-REC",
			want:   "      * 01 B-REC.\n      *   05 Y PIC X(2).\n",
		},
		{
			name:   "crlf preserved",
			src:    "01 A-REC.\r\n  05 X PIC X(1).\r\n01 B-REC.\r\n  05 Y PIC X(2).\r\n",
			record: "A-REC",
			want:   "01 A-REC.\r\n  05 X PIC X(1).\r",
		},
		{
			name:   "miss returns input",
			src:    rulesThenCustomer,
			record: "NOPE",
			want:   rulesThenCustomer,
		},
		{
			name:   "prefix name is not a match",
			src:    "01 CUSTOMER-RECORD-EXT.\n  05 A PIC X(1).\n01 CUSTOMER-RECORD.\n  05 B PIC X(1).",
			record: "CUSTOMER-RECORD",
			want:   "01 CUSTOMER-RECORD.\n  05 B PIC X(1).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFragment(tt.src, tt.record); got != tt.want {
				t.Errorf("ExtractFragment(%q) =\n%q\nwant\n%q", tt.record, got, tt.want)
			}
		})
	}
}

func TestExtractBlockUsesStartLine(t *testing.T) {
	src := "01 DUP-REC.\n  05 A PIC X(1) VALUE 'Y'.\n01 DUP-REC.\n  05 B PIC X(4).\n  05 C PIC X(4).\n"
	blocks := mustTokenize(t, src)
	d, err := Select(blocks, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	got := ExtractBlock(src, d.Block)
	want := "01 DUP-REC.\n  05 B PIC X(4).\n  05 C PIC X(4).\n"
	if got != want {
		t.Errorf("ExtractBlock = %q, want %q", got, want)
	}
	// By name alone the first duplicate wins.
	if byName := ExtractFragment(src, "DUP-REC"); byName == want {
		t.Error("expected name-based extraction to return the first duplicate")
	}
}

func TestExtractBlockStaleStartLine(t *testing.T) {
	b := Block{Name: "CUSTOMER-RECORD", StartLine: 99}
	got := ExtractBlock(rulesThenCustomer, b)
	if !strings.HasPrefix(got, "       01 CUSTOMER-RECORD.") {
		t.Errorf("expected fallback to name lookup, got %q", got)
	}
}

// Every block's fragment must be a contiguous run of the input's lines and
// equal to the block's own lines.
func TestExtractFidelity(t *testing.T) {
	inputs := []string{
		customerRecord,
		rulesThenCustomer,
		record("A-TYPES", 2, true) + "      * between\n" + record("B-REC", 3, false),
		"junk\n*01 X-REC.\n\t05 F PIC 9(2).\n  01 Y-REC. \n05 G PIC X(1)",
	}
	for _, src := range inputs {
		blocks := mustTokenize(t, src)
		for _, b := range blocks {
			frag := ExtractBlock(src, b)
			if frag != b.Text() {
				t.Errorf("fragment for %s differs from tokenized lines:\n%q\n%q", b.Name, frag, b.Text())
			}
			if !strings.Contains(src, frag) {
				t.Errorf("fragment for %s is not a slice of the input", b.Name)
			}
		}
	}
}

func TestPipelineIdempotent(t *testing.T) {
	run := func(src, name string) string {
		blocks, err := Tokenize(src)
		if err != nil {
			t.Fatalf("Tokenize: %v", err)
		}
		d, err := Select(blocks, name)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		return ExtractBlock(src, d.Block)
	}
	for _, name := range []string{"", "validation-rules", "missing"} {
		first := run(rulesThenCustomer, name)
		second := run(rulesThenCustomer, name)
		if first != second {
			t.Errorf("explicit=%q: outputs differ", name)
		}
	}
}
