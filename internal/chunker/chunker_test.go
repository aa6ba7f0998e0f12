package chunker

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	result := Split("", DefaultOptions())
	if result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	text := "Alice prefers worked examples over abstract definitions."
	result := Split(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(result))
	}
	if result[0].Text != text {
		t.Errorf("expected %q, got %q", text, result[0].Text)
	}
	if result[0].StartLine != 1 {
		t.Errorf("expected StartLine 1, got %d", result[0].StartLine)
	}
}

func TestSplit_SplitsOnHeadings(t *testing.T) {
	// Each section needs to be long enough that the total exceeds MaxSize
	section := strings.Repeat("Some content filling space. ", 12) // ~336 chars
	text := "# Section One\n\n" + section + "\n\n# Section Two\n\n" + section + "\n\n# Section Three\n\n" + section

	result := Split(text, DefaultOptions())
	if len(result) < 2 {
		t.Fatalf("expected at least 2 units, got %d", len(result))
	}

	if !strings.Contains(result[0].Text, "Section One") {
		t.Errorf("first unit should contain 'Section One', got %q", result[0].Text)
	}
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	opts := Options{TargetSize: 200, MinSize: 50, MaxSize: 300}
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "This is a line of text that is about fifty characters long.")
	}
	text := strings.Join(lines, "\n") // ~1200 chars
	result := Split(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 units, got %d", len(result))
	}
}

func TestSplit_MergesSmallBlocks(t *testing.T) {
	text := `# A

Short.

# B

Also short.`

	opts := Options{TargetSize: 400, MinSize: 100, MaxSize: 600}
	result := Split(text, opts)
	// The whole document is under MaxSize, so it stays one unit
	if len(result) != 1 {
		t.Errorf("expected 1 merged unit, got %d", len(result))
	}
}

func TestSplit_ParagraphBreaks(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15) // ~300 chars each
	text := para + "\n\n" + para + "\n\n" + para

	opts := Options{TargetSize: 400, MinSize: 100, MaxSize: 500}
	result := Split(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 units from paragraph splits, got %d", len(result))
	}
}

func TestSplit_TailFoldsIntoPredecessor(t *testing.T) {
	body := strings.Repeat("A full paragraph of ordinary length sits here. ", 10)
	text := body + "\n\n" + body + "\n\nEnd."

	opts := Options{TargetSize: 400, MinSize: 100, MaxSize: 500}
	result := Split(text, opts)
	last := result[len(result)-1]
	if !strings.HasSuffix(last.Text, "End.") {
		t.Errorf("tail should fold into the last unit, got %q", last.Text)
	}
	if len(last.Text) < opts.MinSize {
		t.Errorf("last unit shorter than MinSize: %d chars", len(last.Text))
	}
}
