package chunker

import (
	"strings"
	"testing"
)

func Test_Split_BlankInputReturnsNil(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "\n\t  \n"} {
		if got := Split(input, 100, 10); len(got) != 0 {
			t.Errorf("Split(%q): want 0 chunks, got %d", input, len(got))
		}
	}
}

func Test_Split_PrefersSentenceBoundaries(t *testing.T) {
	t.Parallel()

	chunks := Split("A. B. C.", 4, 0)
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d: %+v", len(chunks), chunks)
	}

	want := []string{"A.", "B.", "C."}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunk[%d].Text: want %q, got %q", i, w, chunks[i].Text)
		}
	}
}

func Test_Split_ParagraphBreakWinsOverSentence(t *testing.T) {
	t.Parallel()

	// The window contains both a paragraph break and a later sentence end;
	// the paragraph break has higher priority.
	text := "first para\n\nsecond. sentence here and more trailing text to exceed the window"
	chunks := Split(text, 30, 0)

	if len(chunks) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "first para" {
		t.Errorf("chunk[0].Text: want %q, got %q", "first para", chunks[0].Text)
	}
	if chunks[0].EndChar != len("first para\n\n") {
		t.Errorf("chunk[0].EndChar: want %d, got %d", len("first para\n\n"), chunks[0].EndChar)
	}
}

func Test_Split_OffsetsRevalidateAgainstOriginal(t *testing.T) {
	t.Parallel()

	text := "The quick brown fox jumps over the lazy dog. " +
		"Pack my box with five dozen liquor jugs. " +
		"How vexingly quick daft zebras jump!"
	chunks := Split(text, 40, 10)

	if len(chunks) == 0 {
		t.Fatal("want chunks, got none")
	}
	for i, c := range chunks {
		if c.StartChar < 0 || c.EndChar > len(text) || c.StartChar >= c.EndChar {
			t.Fatalf("chunk[%d]: invalid range [%d,%d) for text length %d", i, c.StartChar, c.EndChar, len(text))
		}
		if got := strings.TrimSpace(text[c.StartChar:c.EndChar]); got != c.Text {
			t.Errorf("chunk[%d]: Text %q does not match trimmed original slice %q", i, c.Text, got)
		}
		if c.Index != i {
			t.Errorf("chunk[%d]: Index = %d", i, c.Index)
		}
	}
}

func Test_Split_RangesCoverTextAndNeverRegress(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("some words in a line ", 60) // 1260 chars, spaces only
	chunks := Split(text, 200, 40)

	if chunks[0].StartChar != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].StartChar)
	}
	if last := chunks[len(chunks)-1]; last.EndChar != len(text) {
		t.Errorf("last chunk ends at %d, want %d", last.EndChar, len(text))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartChar <= chunks[i-1].StartChar {
			t.Fatalf("chunk[%d].StartChar %d does not advance past %d", i, chunks[i].StartChar, chunks[i-1].StartChar)
		}
		// Overlap means the next chunk may start before the previous end,
		// but never before previousEnd - overlap.
		if chunks[i].StartChar < chunks[i-1].EndChar-40 {
			t.Errorf("chunk[%d] overlaps more than configured: start %d, prev end %d", i, chunks[i].StartChar, chunks[i-1].EndChar)
		}
		// No gaps: coverage is contiguous up to overlap.
		if chunks[i].StartChar > chunks[i-1].EndChar {
			t.Errorf("gap between chunk[%d] and chunk[%d]", i-1, i)
		}
	}
}

func Test_Split_TerminatesWithoutBoundaries(t *testing.T) {
	t.Parallel()

	// A single unbroken token: no boundary of any kind. The splitter must
	// fall back to raw window cuts and still terminate.
	// Raw cuts advance by size-overlap = 70: starts 0, 70, ..., 910, and the
	// window starting at 910 reaches the end of the text.
	text := strings.Repeat("x", 1000)
	chunks := Split(text, 100, 30)

	if len(chunks) != 14 {
		t.Fatalf("want 14 raw-cut chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > 100 {
			t.Errorf("chunk[%d] exceeds window size: %d", i, len(c.Text))
		}
	}
}

func Test_Split_OverlapSharedBetweenChunks(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("alpha beta gamma delta ", 20)
	chunks := Split(text, 100, 20)

	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartChar >= chunks[i-1].EndChar {
			continue // raw cut landed exactly; no overlap for this pair
		}
		shared := chunks[i-1].EndChar - chunks[i].StartChar
		if shared > 20 {
			t.Errorf("pair %d: shared region %d exceeds overlap 20", i, shared)
		}
	}
}
