package alloc

import "github.com/joshuapare/capkit/pkg/types"

// MaxBucketRuns is the number of separate slot runs one size class can hold.
// Untyped capabilities created back to back land in consecutive slots and
// share a run, so a handful of runs covers typical split walks.
const MaxBucketRuns = 16

// bucket holds untyped capabilities of one size class as runs of consecutive
// slots. Capabilities come out front first.
type bucket struct {
	runs [MaxBucketRuns]types.CapRange
	n    int
}

// push appends ut to the class. A capability directly following the last
// run extends it; otherwise a new run is opened. Reports false when every
// run is in use.
func (b *bucket) push(ut types.CPtr) bool {
	if b.n > 0 {
		last := &b.runs[b.n-1]
		if last.End() == ut {
			last.Count++
			return true
		}
	}
	if b.n == MaxBucketRuns {
		return false
	}
	b.runs[b.n] = types.CapRange{First: ut, Count: 1}
	b.n++
	return true
}

// pop removes and returns the first capability of the class.
func (b *bucket) pop() (types.CPtr, bool) {
	if b.n == 0 {
		return types.NullCap, false
	}
	r := &b.runs[0]
	ut := r.First
	r.First++
	r.Count--
	if r.Count == 0 {
		copy(b.runs[:], b.runs[1:b.n])
		b.n--
		b.runs[b.n] = types.CapRange{}
	}
	return ut, true
}

func (b *bucket) empty() bool { return b.n == 0 }

// count returns the number of capabilities held.
func (b *bucket) count() uint64 {
	var c uint64
	for i := range b.n {
		c += b.runs[i].Count
	}
	return c
}

// sizeClass maps an untyped size exponent to its bucket index.
func sizeClass(sizeBits uint) (int, bool) {
	if sizeBits < MinUntypedSize || sizeBits > MaxUntypedSize {
		return 0, false
	}
	return int(sizeBits - MinUntypedSize), true
}

// bucketFor returns the bucket of the given size class, or nil when the size
// is outside the tracked classes.
func (a *Allocator) bucketFor(sizeBits uint) *bucket {
	i, ok := sizeClass(sizeBits)
	if !ok {
		return nil
	}
	return &a.untypedItems[i]
}

// stash files an untyped capability of 2^sizeBits bytes under its size class.
// Capabilities that fit no class are counted as lost.
func (a *Allocator) stash(ut types.CPtr, sizeBits uint) {
	if b := a.bucketFor(sizeBits); b != nil && b.push(ut) {
		return
	}
	a.stats.LostSplits++
	a.log.Warn("untyped capability not tracked", "cap", ut, "size_bits", sizeBits)
}
