package engine

import (
	"testing"
	"time"

	"github.com/hailam/chessplay/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)
	eng.SetDifficulty(Easy)

	move := eng.Search(pos)
	if move == board.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

// TestSearchRepeatedPositions exercises the iterative deepening loop across
// several successive positions sharing one Engine, verifying state (TT,
// move ordering tables, pawn cache) doesn't corrupt subsequent searches.
func TestSearchRepeatedPositions(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	iterations := 10
	if testing.Short() {
		iterations = 3
	}

	for i := 0; i < iterations; i++ {
		limits := SearchLimits{
			Depth:    6,
			MoveTime: 500 * time.Millisecond,
		}

		move := eng.SearchWithLimits(pos, limits)
		if move == board.NoMove {
			t.Errorf("Iteration %d: Search returned NoMove for starting position", i)
		}

		if i%2 == 0 {
			pos, _ = board.ParseFEN("rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2")
		} else {
			pos, _ = board.ParseFEN("rnbqkbnr/ppp1pppp/8/3p4/3P4/8/PPP1PPPP/RNBQKBNR w KQkq d6 0 2")
		}
	}

	t.Logf("Completed %d search iterations", iterations)
}

// TestSearchMultiplePositions tests searching different positions in turn.
func TestSearchMultiplePositions(t *testing.T) {
	eng := NewEngine(16)

	positions := []string{
		board.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", // Italian Game
		"8/8/8/4k3/8/4K3/4P3/8 w - - 0 1",                                  // KP endgame
	}

	for i, fen := range positions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("Failed to parse position %d: %v", i, err)
		}

		limits := SearchLimits{
			Depth:    5,
			MoveTime: 300 * time.Millisecond,
		}

		move := eng.SearchWithLimits(pos, limits)
		if move == board.NoMove {
			if !pos.InCheck() || pos.GenerateLegalMoves().Len() > 0 {
				t.Errorf("Position %d: Search returned NoMove", i)
			}
		} else {
			t.Logf("Position %d: best move = %s", i, move.String())
		}
	}
}

// TestSetEvalWeightsChangesMaterialScore verifies EvalWeights actually
// drives Evaluate/EvaluateMaterial, and that it's restored afterward so
// other tests in the package see the tuned defaults.
func TestSetEvalWeightsChangesMaterialScore(t *testing.T) {
	defer SetEvalWeights(DefaultEvalWeights())

	// White is up a single knight.
	pos, err := board.ParseFEN("4k3/8/8/8/8/8/8/N3K3 w - - 0 1")
	if err != nil {
		t.Fatalf("Failed to parse FEN: %v", err)
	}

	SetEvalWeights(DefaultEvalWeights())
	defaultScore := EvaluateMaterial(pos)

	SetEvalWeights(EvalWeights{Pawn: 100, Knight: 0, Bishop: 330, Rook: 500, Queen: 900, King: KingValue})
	zeroedKnightScore := EvaluateMaterial(pos)

	if zeroedKnightScore >= defaultScore {
		t.Errorf("expected material score to drop once knight value is zeroed: default=%d, zeroed=%d", defaultScore, zeroedKnightScore)
	}
}

// TestDifficultyEvalWeightsFlattenMaterial checks that the Easy preset is a
// genuinely weaker material scale than Hard's, not an identical copy.
func TestDifficultyEvalWeightsFlattenMaterial(t *testing.T) {
	easy := DifficultyEvalWeights[Easy]
	hard := DifficultyEvalWeights[Hard]

	if easy.Knight-easy.Pawn >= hard.Knight-hard.Pawn {
		t.Errorf("expected Easy's knight-over-pawn margin to be smaller than Hard's: easy=%d hard=%d", easy.Knight-easy.Pawn, hard.Knight-hard.Pawn)
	}
	if easy.Tempo >= hard.Tempo {
		t.Errorf("expected Easy's tempo bonus to be smaller than Hard's: easy=%d hard=%d", easy.Tempo, hard.Tempo)
	}
}

func TestPawnHashTable(t *testing.T) {
	pt := NewPawnTable(1) // 1MB

	pos := board.NewPosition()

	_, _, found := pt.Probe(pos.PawnKey)
	if found {
		t.Error("Expected cache miss on first probe")
	}

	pt.Store(pos.PawnKey, -15, -20)
	// ristretto applies sets asynchronously; wait for this one to land.
	pt.cache.Wait()

	mg, eg, found := pt.Probe(pos.PawnKey)
	if !found {
		t.Error("Expected cache hit after store")
	}
	if mg != -15 || eg != -20 {
		t.Errorf("Wrong values: got mg=%d, eg=%d, want -15, -20", mg, eg)
	}

	oldKey := pos.PawnKey
	move := board.NewMove(board.E2, board.E4)
	undo := pos.MakeMove(move)
	if pos.PawnKey == oldKey {
		t.Error("PawnKey should change when pawn moves")
	}

	pos.UnmakeMove(move, undo)
	if pos.PawnKey != oldKey {
		t.Error("PawnKey should be restored on unmake")
	}

	t.Logf("PawnKey: %016x", pos.PawnKey)
}
