package board

import (
	"testing"

	"github.com/cespare/xxhash/v2"
)

// canonicalDigest hashes the position's actual content (piece bitboards,
// side to move, castling rights, en passant square) with xxhash over the raw
// bytes, an algorithm unrelated to Zobrist keying. If the incremental
// Zobrist hash and this digest ever disagree about whether two positions
// are the same, the Zobrist bookkeeping in MakeMove/UnmakeMove corrupted
// something the from-scratch recomputation papered over.
func canonicalDigest(p *Position) uint64 {
	var buf [2*6*8 + 8]byte
	n := 0
	for c := 0; c < 2; c++ {
		for pt := 0; pt < 6; pt++ {
			for b := 0; b < 8; b++ {
				buf[n] = byte(p.Pieces[c][pt] >> (8 * b))
				n++
			}
		}
	}
	buf[n] = byte(p.SideToMove)
	n++
	buf[n] = byte(p.CastlingRights)
	n++
	buf[n] = byte(p.EnPassant)
	n++
	return xxhash.Sum64(buf[:n])
}

// walkIntegrity performs a perft-style traversal, cross-checking at every
// node that the incrementally maintained Zobrist hash matches a from-scratch
// recomputation, and that positions sharing a Zobrist hash also share a
// canonical digest (i.e. are truly the same position, not a collision).
func walkIntegrity(t *testing.T, p *Position, depth int, seen map[uint64]uint64) {
	t.Helper()

	if got, want := p.Hash, p.ComputeHash(); got != want {
		t.Fatalf("incremental hash %016x != recomputed hash %016x", got, want)
	}

	digest := canonicalDigest(p)
	if prior, ok := seen[p.Hash]; ok {
		if prior != digest {
			t.Fatalf("Zobrist collision detected: hash %016x shared by two distinct positions", p.Hash)
		}
	} else {
		seen[p.Hash] = digest
	}

	if depth == 0 {
		return
	}

	moves := p.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := p.MakeMove(m)
		walkIntegrity(t, p, depth-1, seen)
		p.UnmakeMove(m, undo)
	}
}

func TestHashIntegrityStartingPosition(t *testing.T) {
	pos := NewPosition()
	walkIntegrity(t, pos, 4, make(map[uint64]uint64))
}

func TestHashIntegrityKiwipete(t *testing.T) {
	pos, err := ParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq -")
	if err != nil {
		t.Fatalf("Failed to parse FEN: %v", err)
	}
	walkIntegrity(t, pos, 3, make(map[uint64]uint64))
}

func TestHashRestoredAfterUnmakeMove(t *testing.T) {
	pos := NewPosition()
	original := pos.Hash

	moves := pos.GenerateLegalMoves()
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := pos.MakeMove(m)
		pos.UnmakeMove(m, undo)
		if pos.Hash != original {
			t.Fatalf("hash not restored after make/unmake of %s: got %016x, want %016x",
				m.String(), pos.Hash, original)
		}
	}
}
