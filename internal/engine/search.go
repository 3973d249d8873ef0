package engine

import (
	"math"
	"sync/atomic"

	"github.com/hailam/chessplay/internal/board"
)

// Search constants
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

// lmrReductions is a precomputed table of late-move-reduction amounts,
// indexed by [depth][moveCount]. Stockfish-style logarithmic formula.
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(21.46 * math.Log(float64(d)) * math.Log(float64(m)) / 1024.0)
			if lmrReductions[d][m] < 1 {
				lmrReductions[d][m] = 1
			}
		}
	}
}

// PVTable stores the principal variation found at each ply.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// Searcher performs alpha-beta negamax search over a single owned Position.
// One Searcher handles one search at a time; there is no shared mutable
// state between concurrent searches, matching a single goroutine per engine.
type Searcher struct {
	pos         *board.Position
	tt          *TranspositionTable
	orderer     *MoveOrderer
	pawnTable   *PawnTable
	corrHistory *CorrectionHistory

	nodes    uint64
	stopFlag atomic.Bool

	pv PVTable

	undoStack [MaxPly]board.UndoInfo
	evalStack [MaxPly]int

	// Position history for repetition detection. rootPosHashes holds the
	// game's move history supplied by the UCI layer; posHistoryBuffer
	// extends it with in-search plies to avoid per-node allocation.
	rootPosHashes    []uint64
	posHistoryBuffer [768]uint64
	posHistoryLen    int
}

// NewSearcher creates a searcher sharing the given transposition table.
func NewSearcher(tt *TranspositionTable) *Searcher {
	return &Searcher{
		tt:          tt,
		orderer:     NewMoveOrderer(),
		pawnTable:   NewPawnTable(1),
		corrHistory: NewCorrectionHistory(),
	}
}

// Stop signals the search to stop as soon as possible.
func (s *Searcher) Stop() {
	s.stopFlag.Store(true)
}

// IsStopped reports whether the search has been signalled to stop.
func (s *Searcher) IsStopped() bool {
	return s.stopFlag.Load()
}

// Reset clears per-search state (but not the transposition table) before
// a new iterative deepening run.
func (s *Searcher) Reset() {
	s.stopFlag.Store(false)
	s.nodes = 0
	s.orderer.Clear()
}

// ClearOrderer discards killer/history/counter-move tables.
func (s *Searcher) ClearOrderer() {
	s.orderer.Clear()
}

// ClearPawnTable empties the pawn hash cache.
func (s *Searcher) ClearPawnTable() {
	s.pawnTable.Clear()
}

// Nodes returns the number of nodes visited during the last search.
func (s *Searcher) Nodes() uint64 {
	return s.nodes
}

// SetRootHistory records the game's position hashes for repetition
// detection. Must be called before Search.
func (s *Searcher) SetRootHistory(hashes []uint64) {
	s.rootPosHashes = make([]uint64, len(hashes))
	copy(s.rootPosHashes, hashes)
}

// initRun prepares per-search position state. pos is copied so the caller's
// position is left untouched across iterative deepening calls.
func (s *Searcher) initRun(pos *board.Position) {
	s.pos = pos.Copy()

	rootLen := len(s.rootPosHashes)
	if rootLen > 640 {
		rootLen = 640
		copy(s.posHistoryBuffer[:rootLen], s.rootPosHashes[len(s.rootPosHashes)-640:])
	} else {
		copy(s.posHistoryBuffer[:rootLen], s.rootPosHashes)
	}
	s.posHistoryBuffer[rootLen] = s.pos.Hash
	s.posHistoryLen = rootLen + 1
}

// Search performs a full search at the given depth, returning the best
// move and its score. Call Reset before the first call of a new game-move
// search, but NOT between successive depths of the same iterative
// deepening run (history/killers should persist across depths).
func (s *Searcher) Search(pos *board.Position, depth int) (board.Move, int) {
	s.initRun(pos)

	score := s.negamax(depth, 0, -Infinity, Infinity, board.NoMove)

	var bestMove board.Move
	if s.pv.length[0] > 0 {
		bestMove = s.pv.moves[0][0]
	}

	// Safety fallback: if search was interrupted before a PV formed but
	// legal moves exist, never return NoMove.
	if bestMove == board.NoMove {
		moves := s.pos.GenerateLegalMoves()
		if moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	return bestMove, score
}

// evaluate returns the static evaluation, using the pawn structure cache.
func (s *Searcher) evaluate() int {
	return EvaluateWithPawnTable(s.pos, s.pawnTable)
}

// isDraw checks for draw by the fifty-move rule, insufficient material,
// or repetition: the current position's hash occurs at least twice in the
// recorded position history, which already includes the current position.
func (s *Searcher) isDraw() bool {
	if s.pos.HalfMoveClock >= 100 {
		return true
	}
	if s.pos.IsInsufficientMaterial() {
		return true
	}

	if s.posHistoryLen > 0 {
		currentHash := s.pos.Hash
		count := 0
		for i := 0; i < s.posHistoryLen; i++ {
			if s.posHistoryBuffer[i] == currentHash {
				count++
				if count >= 2 {
					return true
				}
			}
		}
	}

	return false
}

// negamax implements alpha-beta search with iterative-deepening-friendly
// move ordering, null-move pruning, reverse futility pruning, late move
// reductions, and quiescence at the horizon.
func (s *Searcher) negamax(depth, ply int, alpha, beta int, prevMove board.Move) int {
	if ply >= MaxPly-1 {
		return s.evaluate()
	}

	if s.nodes&4095 == 0 && s.stopFlag.Load() {
		return 0
	}

	s.nodes++
	s.pv.length[ply] = ply

	if ply > 0 && s.isDraw() {
		return 0
	}

	var ttMove board.Move
	ttPv := false
	ttEntry, found := s.tt.Probe(s.pos.Hash)
	if found {
		ttMove = ttEntry.BestMove
		ttPv = ttEntry.Flag == TTExact

		if int(ttEntry.Depth) >= depth {
			score := AdjustScoreFromTT(int(ttEntry.Score), ply)
			switch ttEntry.Flag {
			case TTExact:
				if ply == 0 && ttMove != board.NoMove {
					s.pv.moves[0][0] = ttMove
					s.pv.length[0] = 1
				}
				return score
			case TTLowerBound:
				if score > alpha {
					alpha = score
				}
			case TTUpperBound:
				if score < beta {
					beta = score
				}
			}
			if alpha >= beta {
				return score
			}
		}
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	inCheck := s.pos.InCheck()

	// Internal iterative reduction: without a TT move to guide ordering,
	// shave depth instead of doing a separate probe search.
	if depth >= 4 && ttMove == board.NoMove && !inCheck {
		depth -= 2
	}

	extension := 0
	if inCheck {
		extension = 1
	}

	rawEval := s.evaluate()
	correction := s.corrHistory.Get(s.pos)
	staticEval := rawEval + correction
	s.evalStack[ply] = staticEval

	improving := false
	if ply >= 2 {
		improving = staticEval > s.evalStack[ply-2]
	}

	// Reverse futility pruning: if static eval already comfortably beats
	// beta, assume a real search would too.
	if !inCheck && depth <= 6 && ply > 0 && !ttPv {
		margin := 80 * depth
		if !improving {
			margin -= 20
		}
		if staticEval-margin >= beta {
			return beta
		}
	}

	// Null move pruning: pass the turn and see if the opponent still can't
	// beat beta even with a free tempo. Skipped in pawn endgames to avoid
	// zugzwang blindness.
	if !inCheck && depth >= 3 && ply > 0 && !ttPv && s.pos.HasNonPawnMaterial() {
		r := 3 + depth/4
		if r > depth-1 {
			r = depth - 1
		}
		if r > 0 {
			nullUndo := s.pos.MakeNullMove()
			nullScore := -s.negamax(depth-1-r, ply+1, -beta, -beta+1, board.NoMove)
			s.pos.UnmakeNullMove(nullUndo)

			if s.stopFlag.Load() {
				return 0
			}
			if nullScore >= beta {
				return nullScore
			}
		}
	}

	// Futility pruning flag: a hopeless static eval lets quiet moves past
	// the first be skipped outright.
	pruneQuietMoves := false
	if depth <= 5 && !inCheck && ply > 0 {
		futilityMargin := [6]int{0, 200, 300, 500, 700, 900}
		if staticEval+futilityMargin[depth] <= alpha {
			pruneQuietMoves = true
		}
	}

	moves := s.pos.GenerateLegalMoves()
	if moves.Len() == 0 {
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	scores := s.orderer.ScoreMovesWithCounter(s.pos, moves, ply, ttMove, prevMove)

	bestScore := -Infinity
	bestMove := board.NoMove
	flag := TTUpperBound
	movesSearched := 0

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		isCapture := move.IsCapture(s.pos)
		isPromotion := move.IsPromotion()

		if pruneQuietMoves && !isCapture && !isPromotion && bestMove != board.NoMove {
			continue
		}

		if isCapture && depth <= 7 && !inCheck && movesSearched > 0 {
			if SEE(s.pos, move) < -20*depth {
				continue
			}
		}

		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			s.pos.UnmakeMove(move, s.undoStack[ply])
			continue
		}

		s.posHistoryBuffer[s.posHistoryLen] = s.pos.Hash
		s.posHistoryLen++
		movesSearched++

		var score int
		newDepth := depth - 1 + extension

		if movesSearched > 4 && depth >= 3 && !inCheck && !isCapture && !isPromotion {
			d, m := depth, movesSearched
			if d > 63 {
				d = 63
			}
			if m > 63 {
				m = 63
			}
			reduction := lmrReductions[d][m]
			if !improving {
				reduction++
			}
			if move == ttMove {
				reduction -= 2
			}
			if ttPv {
				reduction--
			}
			if reduction < 1 {
				reduction = 1
			}

			reducedDepth := newDepth - reduction
			if reducedDepth < 1 {
				reducedDepth = 1
			}

			score = -s.negamax(reducedDepth, ply+1, -alpha-1, -alpha, move)
			if score > alpha {
				score = -s.negamax(newDepth, ply+1, -beta, -alpha, move)
			}
		} else if movesSearched == 1 {
			score = -s.negamax(newDepth, ply+1, -beta, -alpha, move)
		} else {
			score = -s.negamax(newDepth, ply+1, -alpha-1, -alpha, move)
			if score > alpha && score < beta {
				score = -s.negamax(newDepth, ply+1, -beta, -alpha, move)
			}
		}

		s.posHistoryLen--
		s.pos.UnmakeMove(move, s.undoStack[ply])

		if s.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				s.pv.moves[ply][ply] = move
				for j := ply + 1; j < s.pv.length[ply+1]; j++ {
					s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
				}
				s.pv.length[ply] = s.pv.length[ply+1]
			}
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, bestMove)

			if isCapture {
				attacker := s.pos.PieceAt(move.From())
				var capturedType board.PieceType
				if move.IsEnPassant() {
					capturedType = board.Pawn
				} else if captured := s.pos.PieceAt(move.To()); captured != board.NoPiece {
					capturedType = captured.Type()
				}
				s.orderer.UpdateCaptureHistory(attacker, move.To(), capturedType, depth, true)
			} else {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(move, depth, true)
				s.orderer.UpdateCounterMove(prevMove, move, s.pos)

				if prevMove != board.NoMove {
					prevPiece := s.pos.PieceAt(prevMove.To())
					movePiece := s.pos.PieceAt(move.To())
					s.orderer.UpdateCountermoveHistory(prevMove, move, prevPiece, movePiece, depth, true)
				}
			}

			return score
		}
	}

	if flag == TTExact && !inCheck && depth >= 2 {
		s.corrHistory.Update(s.pos, bestScore, rawEval, depth)
	}

	s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)

	return bestScore
}

// quiescence searches only captures (and evasions when in check) to avoid
// the horizon effect at the end of the main search.
func (s *Searcher) quiescence(ply int, alpha, beta int) int {
	const maxQuiescencePly = 32
	if ply >= MaxPly || ply > maxQuiescencePly {
		return s.evaluate()
	}

	if s.stopFlag.Load() {
		return 0
	}
	s.nodes++

	inCheck := s.pos.InCheck()

	var standPat int
	if !inCheck {
		standPat = s.evaluate()
		if standPat >= beta {
			return beta
		}
		if standPat > alpha {
			alpha = standPat
		}
		if standPat+QueenValue < alpha {
			return alpha
		}
	}

	var moves *board.MoveList
	if inCheck {
		moves = s.pos.GenerateLegalMoves()
		if moves.Len() == 0 {
			return -MateScore + ply
		}
	} else {
		moves = s.pos.GenerateCaptures()
	}

	scores := s.orderer.ScoreMoves(s.pos, moves, ply, board.NoMove)

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck {
			captureValue := qsCaptureValue(s.pos, move)
			if standPat+captureValue+200 < alpha && !move.IsPromotion() {
				continue
			}
			if SEE(s.pos, move) < 0 {
				continue
			}
		}

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}

		score := -s.quiescence(ply+1, -beta, -alpha)
		s.pos.UnmakeMove(move, undo)

		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}

	return alpha
}

// qsCaptureValue estimates the material gain of a capture for delta pruning.
func qsCaptureValue(pos *board.Position, move board.Move) int {
	var value int
	if move.IsEnPassant() {
		value = PawnValue
	} else if captured := pos.PieceAt(move.To()); captured != board.NoPiece {
		value = pieceValues[captured.Type()]
	}
	if move.IsPromotion() {
		value += pieceValues[move.Promotion()] - PawnValue
	}
	return value
}

// GetPV returns the principal variation from the most recent search.
func (s *Searcher) GetPV() []board.Move {
	pv := make([]board.Move, s.pv.length[0])
	for i := 0; i < s.pv.length[0]; i++ {
		pv[i] = s.pv.moves[0][i]
	}
	return pv
}
