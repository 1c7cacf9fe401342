package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T, dim int) *Flat {
	t.Helper()
	idx, err := NewFlat(dim, filepath.Join(t.TempDir(), "index.bin"))
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	return idx
}

func Test_NewFlat_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewFlat(0, "/tmp/index.bin"); err == nil {
		t.Fatal("expected error for zero dimension")
	}
	if _, err := NewFlat(3, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func Test_Add_AssignsSequentialSlots(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 2)
	if got := idx.Count(); got != 0 {
		t.Fatalf("Count on empty index = %d, want 0", got)
	}

	if err := idx.Add([][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := idx.Count(); got != 2 {
		t.Fatalf("Count after first batch = %d, want 2", got)
	}

	if err := idx.Add([][]float32{{1, 1}}); err != nil {
		t.Fatalf("Add second batch: %v", err)
	}
	if got := idx.Count(); got != 3 {
		t.Fatalf("Count after second batch = %d, want 3", got)
	}
}

func Test_Add_DimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 3)
	err := idx.Add([][]float32{{1, 2, 3}, {1, 2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add error = %v, want ErrDimensionMismatch", err)
	}
	if got := idx.Count(); got != 0 {
		t.Fatalf("Count after failed Add = %d, want 0", got)
	}
}

func Test_Search_ReturnsNearestFirst(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 2)
	if err := idx.Add([][]float32{{10, 10}, {1, 1}, {2, 2}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := idx.Search([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Slot != 1 || hits[1].Slot != 2 {
		t.Fatalf("hit slots = [%d %d], want [1 2]", hits[0].Slot, hits[1].Slot)
	}
	// Squared L2: (1,1) is 2 away from the origin, not sqrt(2).
	if hits[0].Distance != 2 {
		t.Fatalf("nearest distance = %v, want 2", hits[0].Distance)
	}
	if hits[1].Distance != 8 {
		t.Fatalf("second distance = %v, want 8", hits[1].Distance)
	}
}

func Test_Search_FewerVectorsThanK(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 2)
	if err := idx.Add([][]float32{{1, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := idx.Search([]float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}

func Test_Search_TiesBreakBySlot(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 2)
	if err := idx.Add([][]float32{{0, 1}, {1, 0}, {0, -1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := idx.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, want := range []int64{0, 1, 2} {
		if hits[i].Slot != want {
			t.Fatalf("hit %d slot = %d, want %d", i, hits[i].Slot, want)
		}
	}
}

func Test_Search_QueryDimensionMismatch(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 3)
	if _, err := idx.Search([]float32{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Search error = %v, want ErrDimensionMismatch", err)
	}
}

func Test_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.bin")
	idx, err := NewFlat(2, path)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	vectors := [][]float32{{1.5, -2.25}, {0, 0}, {3, 4}}
	if err := idx.Add(vectors); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored, err := NewFlat(2, path)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := restored.Count(); got != 3 {
		t.Fatalf("Count after Load = %d, want 3", got)
	}

	hits, err := restored.Search([]float32{3, 4}, 1)
	if err != nil {
		t.Fatalf("Search after Load: %v", err)
	}
	if hits[0].Slot != 2 || hits[0].Distance != 0 {
		t.Fatalf("hit = %+v, want slot 2 distance 0", hits[0])
	}
}

func Test_Load_MissingSnapshot(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, 2)
	if err := idx.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load error = %v, want ErrNoSnapshot", err)
	}
}

func Test_Load_RejectsCorruptSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.bin")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	idx, err := NewFlat(2, path)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	if err := idx.Load(); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func Test_Load_RejectsWrongDimension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.bin")
	idx, err := NewFlat(4, path)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	if err := idx.Add([][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other, err := NewFlat(2, path)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	if err := other.Load(); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Load error = %v, want ErrDimensionMismatch", err)
	}
}
