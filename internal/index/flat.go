// Package index provides an append-only, exact flat L2 vector index with a
// single-file snapshot on disk. Each added vector is assigned a slot — its
// insertion position — which is the sole join key between vector space and
// the chunk metadata store. Slots are never reused or reordered: deleting a
// document removes only its metadata, so the deleted vectors remain in the
// index but become unreachable (their slot lookups fail and retrieval filters
// them out). The resulting space leak is an accepted limitation of this
// design; compaction would invalidate every slot already persisted.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrDimensionMismatch reports a vector whose width differs from the index's
// configured dimension. This is a programmer or configuration error — it is
// never retried.
var ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

// ErrNoSnapshot reports that Load found no snapshot file at the configured
// path. Callers treat this as "start empty", not as a failure.
var ErrNoSnapshot = errors.New("index: no snapshot found")

// snapshotMagic identifies a flat index snapshot file.
const snapshotMagic = uint32(0x46494458) // "FIDX"

// snapshotVersion is the current on-disk format version.
const snapshotVersion = uint32(1)

// Hit is a single nearest-neighbor search result.
type Hit struct {
	// Slot is the insertion position of the matched vector.
	Slot int64
	// Distance is the squared Euclidean (L2) distance between the query and
	// the matched vector, following the convention of flat L2 indexes:
	// identical vectors score exactly 0.
	Distance float32
}

// Flat is an exact, brute-force L2 index over fixed-dimension float32
// vectors. It is safe for concurrent use: searches proceed in parallel,
// appends take the write lock. Flat never removes or reorders vectors.
type Flat struct {
	// mu guards vectors. Count/Search take the read lock; Add/Load the write lock.
	mu sync.RWMutex
	// dim is the configured vector dimension.
	dim int
	// path is the snapshot file location used by Save and Load.
	path string
	// vectors holds all added vectors, indexed by slot.
	vectors [][]float32
}

// NewFlat constructs an empty Flat index for vectors of the given dimension,
// persisting snapshots at path.
func NewFlat(dim int, path string) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	if path == "" {
		return nil, fmt.Errorf("index: snapshot path must not be empty")
	}
	return &Flat{dim: dim, path: path}, nil
}

// Dimension returns the configured vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// Count returns the total number of vectors in the index, which is also the
// slot that the next appended vector will receive.
func (f *Flat) Count() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.vectors))
}

// Add appends vectors to the index in order. The assigned slots are the
// pre-add Count() .. Count()+len(vectors)-1. Vectors are copied, so callers
// may reuse their slices. Fails with ErrDimensionMismatch without appending
// anything if any vector's width differs from the index dimension.
func (f *Flat) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index expects %d",
				ErrDimensionMismatch, i, len(v), f.dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		f.vectors = append(f.vectors, cp)
	}
	return nil
}

// Search returns up to k hits sorted ascending by distance (nearest first).
// When the index holds fewer than k vectors, fewer hits are returned —
// absent results are simply omitted rather than padded.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	hits := make([]Hit, 0, len(f.vectors))
	for slot, v := range f.vectors {
		hits = append(hits, Hit{Slot: int64(slot), Distance: l2sq(query, v)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Slot < hits[j].Slot
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Save writes a snapshot of the full vector set to the configured path.
// The snapshot is written to a temporary file and renamed into place so a
// crash mid-write never corrupts the previous snapshot.
func (f *Flat) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("index: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("index: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("index: replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the in-memory vector set with the snapshot at the configured
// path. Returns ErrNoSnapshot when the file does not exist, and a descriptive
// error for unreadable or malformed snapshots; callers recover from both by
// starting empty.
func (f *Flat) Load() error {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoSnapshot, f.path)
		}
		return fmt.Errorf("index: open snapshot: %w", err)
	}
	defer file.Close()

	dim, vectors, err := read(file)
	if err != nil {
		return err
	}
	if dim != f.dim {
		return fmt.Errorf("%w: snapshot has dimension %d, index expects %d",
			ErrDimensionMismatch, dim, f.dim)
	}

	f.mu.Lock()
	f.vectors = vectors
	f.mu.Unlock()
	return nil
}

// write serializes the index to w. Caller holds at least the read lock.
func (f *Flat) write(w io.Writer) error {
	header := []uint32{snapshotMagic, snapshotVersion, uint32(f.dim), uint32(len(f.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("index: write snapshot header: %w", err)
		}
	}
	for _, v := range f.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("index: write snapshot vectors: %w", err)
		}
	}
	return nil
}

// read deserializes a snapshot from r, returning its dimension and vectors.
func read(r io.Reader) (int, [][]float32, error) {
	var magic, version, dim, count uint32
	for _, p := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return 0, nil, fmt.Errorf("index: read snapshot header: %w", err)
		}
	}
	if magic != snapshotMagic {
		return 0, nil, fmt.Errorf("index: not a snapshot file (bad magic %#x)", magic)
	}
	if version != snapshotVersion {
		return 0, nil, fmt.Errorf("index: unsupported snapshot version %d", version)
	}

	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return 0, nil, fmt.Errorf("index: read snapshot vector %d: %w", i, err)
		}
		vectors = append(vectors, v)
	}
	return int(dim), vectors, nil
}

// l2sq returns the squared Euclidean distance between a and b.
// Both slices must have equal length; callers validate the dimension.
func l2sq(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Min(sum, math.MaxFloat32))
}
