package ui

import (
	"fmt"
	"strings"
	"testing"
)

func TestBarFill(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		percent int
		width   int
		filled  int
		empty   int
	}{
		{name: "zero", percent: 0, width: 10, filled: 0, empty: 10},
		{name: "partial", percent: 40, width: 10, filled: 4, empty: 6},
		{name: "full", percent: 100, width: 10, filled: 10, empty: 0},
		{name: "over full saturates", percent: 150, width: 10, filled: 10, empty: 0},
		{name: "negative drains", percent: -5, width: 10, filled: 0, empty: 10},
		{name: "default width", percent: 50, width: 0, filled: 10, empty: 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Bar(tc.percent, tc.width)
			if n := strings.Count(got, "█"); n != tc.filled {
				t.Fatalf("filled cells = %d, want %d (%q)", n, tc.filled, got)
			}
			if n := strings.Count(got, "░"); n != tc.empty {
				t.Fatalf("empty cells = %d, want %d (%q)", n, tc.empty, got)
			}
			if want := fmt.Sprintf("%d%%", tc.percent); !strings.HasSuffix(got, want) {
				t.Fatalf("Bar() = %q, want %q suffix", got, want)
			}
		})
	}
}

func TestStatusIconGlyphs(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status string
		glyph  string
	}{
		{"completed", "✓"},
		{"running", "◐"},
		{"failed", "✗"},
		{"cancelled", "⊘"},
		{"skipped", "⊘"},
		{"pending", "○"},
		{"idle", "○"},
		{"bogus", "○"},
	}

	for _, tc := range testCases {
		if got := StatusIcon(tc.status); !strings.Contains(got, tc.glyph) {
			t.Fatalf("StatusIcon(%q) = %q, want glyph %q", tc.status, got, tc.glyph)
		}
	}
}

func TestStatusKeepsUnknownWordsPlain(t *testing.T) {
	t.Parallel()

	if got := Status("reticulating"); got != "reticulating" {
		t.Fatalf("Status() = %q, want unstyled passthrough", got)
	}
	for _, known := range []string{"completed", "running", "failed", "cancelled", "pending"} {
		if got := Status(known); !strings.Contains(got, known) {
			t.Fatalf("Status(%q) = %q, word missing", known, got)
		}
	}
}

func TestKeyValuesAlignsLabels(t *testing.T) {
	t.Parallel()

	out := KeyValues("  ", KV("ID", "abc"), KV("Status", "running"))
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected trailing newline, got %q", out)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "  ") {
			t.Fatalf("line %q lacks indent", line)
		}
	}
	if !strings.Contains(lines[0], "ID:") || !strings.Contains(lines[0], "abc") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "Status:") || !strings.Contains(lines[1], "running") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestMessageHelpers(t *testing.T) {
	t.Parallel()

	if got := SuccessMsg("created %d", 3); !strings.Contains(got, "✓") || !strings.Contains(got, "created 3") {
		t.Fatalf("SuccessMsg() = %q", got)
	}
	if got := WarnMsg("careful"); !strings.Contains(got, "!") || !strings.Contains(got, "careful") {
		t.Fatalf("WarnMsg() = %q", got)
	}
	if got := ErrorMsg("broken"); !strings.Contains(got, "✗") || !strings.Contains(got, "broken") {
		t.Fatalf("ErrorMsg() = %q", got)
	}
	if got := InfoMsg("note"); !strings.Contains(got, "●") || !strings.Contains(got, "note") {
		t.Fatalf("InfoMsg() = %q", got)
	}
}

func TestTableRendersHeadersAndRows(t *testing.T) {
	t.Parallel()

	out := Table([]string{"STEP", "STATUS"}, [][]string{{"analyze", "completed"}})
	for _, want := range []string{"STEP", "STATUS", "analyze", "completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}
