package engine

import "github.com/dgraph-io/ristretto/v2"

// PawnEntry stores cached pawn structure evaluation.
type PawnEntry struct {
	MgScore int16 // Middlegame score
	EgScore int16 // Endgame score
}

// PawnTable caches pawn structure evaluations keyed by pawn Zobrist key.
// Backed by ristretto's admission-controlled cache rather than a raw
// fixed-size array: pawn skeletons repeat heavily within a single search
// tree, and an LFU-admission policy keeps the genuinely hot ones resident
// instead of evicting on the first index collision the way a direct-mapped
// array would.
type PawnTable struct {
	cache *ristretto.Cache[uint64, PawnEntry]
}

// NewPawnTable creates a pawn hash cache sized to roughly sizeMB megabytes.
func NewPawnTable(sizeMB int) *PawnTable {
	if sizeMB <= 0 {
		sizeMB = 1
	}
	maxCost := int64(sizeMB) * 1024 * 1024

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, PawnEntry]{
		NumCounters: maxCost / 8, // ~1 counter per expected entry (12 bytes/entry, rounded down)
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		// Pawn hashing is a speed optimization, not a correctness
		// requirement; a disabled cache just means every probe misses.
		return &PawnTable{}
	}

	return &PawnTable{cache: cache}
}

// Probe looks up a cached pawn structure evaluation.
func (pt *PawnTable) Probe(key uint64) (mg, eg int, found bool) {
	if pt == nil || pt.cache == nil {
		return 0, 0, false
	}
	entry, ok := pt.cache.Get(key)
	if !ok {
		return 0, 0, false
	}
	return int(entry.MgScore), int(entry.EgScore), true
}

// Store caches a pawn structure evaluation. ristretto applies the set
// asynchronously, so a Probe right after Store can still miss, and the set
// is dropped when ristretto's write buffer is full.
func (pt *PawnTable) Store(key uint64, mg, eg int) {
	if pt == nil || pt.cache == nil {
		return
	}
	pt.cache.Set(key, PawnEntry{MgScore: int16(mg), EgScore: int16(eg)}, 1)
}

// Clear empties the pawn hash cache.
func (pt *PawnTable) Clear() {
	if pt == nil || pt.cache == nil {
		return
	}
	pt.cache.Clear()
}
