package engine

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/hailam/chessplay/internal/board"
	"github.com/hailam/chessplay/internal/perftcache"
)

// SearchInfo contains information about the current search, reported via
// the Engine's OnInfo callback after each completed depth.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits specifies constraints on a fixed-depth/fixed-time search.
type SearchLimits struct {
	Depth    int           // Maximum depth (0 = no limit)
	Nodes    uint64        // Maximum nodes (0 = no limit)
	MoveTime time.Duration // Time for this move (0 = no limit)
	Infinite bool          // Search until stopped
}

// Difficulty represents the AI difficulty level.
type Difficulty int

const (
	Easy   Difficulty = iota // 3 ply, 500ms
	Medium                   // 7 ply, 1s
	Hard                     // Maximum strength, 3s
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second},
}

// DifficultyEvalWeights maps difficulty to the evaluation weights applied
// during that difficulty's searches. Easy flattens material distinctions
// and drops the tempo bonus, and Medium halves the tempo bonus, on top of
// their shallower depth, so Easy play doesn't just look like Hard play cut
// off early.
var DifficultyEvalWeights = map[Difficulty]EvalWeights{
	Easy: {
		Pawn: 100, Knight: 300, Bishop: 300, Rook: 500, Queen: 900, King: KingValue,
		Tempo: 0,
	},
	Medium: {
		Pawn: 100, Knight: 320, Bishop: 330, Rook: 500, Queen: 900, King: KingValue,
		Tempo: 5,
	},
	Hard: DefaultEvalWeights(),
}

// Engine is the chess search engine. A single Engine owns a single
// Searcher operating on a single Position at a time: there is no
// background worker pool, so Stop() takes effect as soon as the current
// node's periodic stop-check fires.
type Engine struct {
	tt       *TranspositionTable
	searcher *Searcher
	stopFlag atomic.Bool

	difficulty Difficulty

	rootPosHashes []uint64

	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine with the given transposition table
// size in MB.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)

	e := &Engine{
		tt:         tt,
		searcher:   NewSearcher(tt),
		difficulty: Medium,
	}

	log.Printf("[Engine] Initialized with %d MB transposition table", ttSizeMB)

	return e
}

// SetDifficulty sets the engine difficulty. This also selects the
// evaluation weights applied by the next search (see DifficultyEvalWeights).
func (e *Engine) SetDifficulty(d Difficulty) {
	e.difficulty = d
}

// SetPositionHistory sets the position history for repetition detection.
// Call this before Search/SearchWithUCILimits with hashes from the game's
// move history (oldest first).
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = make([]uint64, len(hashes))
	copy(e.rootPosHashes, hashes)
	e.searcher.SetRootHistory(hashes)
}

// Search finds the best move for the given position using the engine's
// current difficulty setting.
func (e *Engine) Search(pos *board.Position) board.Move {
	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits finds the best move under the given depth/time/node
// limits, via single-threaded iterative deepening.
func (e *Engine) SearchWithLimits(pos *board.Position, limits SearchLimits) board.Move {
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = time.Now().Add(limits.MoveTime)
	}

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	return e.iterativeDeepen(pos, maxDepth, limits.Nodes, nil, deadline)
}

// SearchWithUCILimits finds the best move using UCI time controls,
// supporting wtime/btime/winc/binc for tournament time management plus
// move-stability-based early stopping.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) board.Move {
	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)
	if !limits.Infinite {
		tm.ScaleForDifficulty(e.difficulty)
	}

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	} else if capDepth := DifficultySettings[e.difficulty].Depth; capDepth > 0 && capDepth < maxDepth {
		// Only clamp the depth search derives on its own (time-control or
		// infinite play); an explicit "go depth N" always gets N plies.
		maxDepth = capDepth
	}

	var deadline time.Time
	if !limits.Infinite {
		deadline = time.Now().Add(tm.MaximumTime())
	}

	return e.iterativeDeepen(pos, maxDepth, limits.Nodes, tm, deadline)
}

// iterativeDeepen runs the core iterative deepening loop shared by both
// search entry points. tm may be nil when no UCI time manager applies
// (fixed depth/movetime searches); deadline, if non-zero, hard-stops the
// loop regardless of tm.
func (e *Engine) iterativeDeepen(pos *board.Position, maxDepth int, nodeLimit uint64, tm *TimeManager, deadline time.Time) board.Move {
	e.stopFlag.Store(false)
	e.tt.NewSearch()
	e.searcher.Reset()
	SetEvalWeights(DifficultyEvalWeights[e.difficulty])

	startTime := time.Now()

	var bestMove board.Move
	var bestScore int
	var lastBestMove board.Move
	var stabilityCount int

	for depth := 1; depth <= maxDepth; depth++ {
		if e.stopFlag.Load() {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		move, score := e.searcher.Search(pos, depth)

		if e.searcher.IsStopped() {
			break
		}

		if move != board.NoMove {
			if move == lastBestMove {
				stabilityCount++
			} else {
				stabilityCount = 0
			}
			lastBestMove = move

			bestMove = move
			bestScore = score

			if e.OnInfo != nil {
				e.OnInfo(SearchInfo{
					Depth:    depth,
					Score:    bestScore,
					Nodes:    e.searcher.Nodes(),
					Time:     time.Since(startTime),
					PV:       e.searcher.GetPV(),
					HashFull: e.tt.HashFull(),
				})
			}
		}

		if bestScore > MateScore-100 || bestScore < -MateScore+100 {
			break
		}

		if nodeLimit > 0 && e.searcher.Nodes() >= nodeLimit {
			break
		}

		if tm != nil {
			if stabilityCount >= 4 {
				tm.AdjustForStability(stabilityCount)
			}
			if tm.ShouldStop() {
				break
			}
			if tm.PastOptimum() && stabilityCount >= 4 {
				break
			}
		}
	}

	e.stopFlag.Store(true)
	e.searcher.Stop()

	return bestMove
}

// Stop stops the current search.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
	e.searcher.Stop()
}

// Clear clears the transposition table and move ordering caches.
func (e *Engine) Clear() {
	e.tt.Clear()
	e.searcher.ClearOrderer()
	e.searcher.ClearPawnTable()
}

// Perft performs a perft test (for debugging move generation).
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := pos.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		undo := pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move, undo)
	}

	return nodes
}

// PerftCached runs Perft, memoizing leaf counts per (FEN, depth) in cache so
// repeated runs against the same reference positions skip the walk entirely.
func (e *Engine) PerftCached(pos *board.Position, depth int, cache *perftcache.Cache) uint64 {
	if cache == nil {
		return e.Perft(pos, depth)
	}

	fen := pos.ToFEN()
	if nodes, found := cache.Get(fen, depth); found {
		return nodes
	}

	nodes := e.Perft(pos, depth)
	cache.Store(fen, depth, nodes)
	return nodes
}

// Evaluate returns the static evaluation of a position.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ResizeHash recreates the transposition table at the given size in MB.
func (e *Engine) ResizeHash(sizeMB int) {
	e.tt = NewTranspositionTable(sizeMB)
	e.searcher.tt = e.tt
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	pawns := score / 100
	centipawns := score % 100

	return sign + itoa(pawns) + "." + itoa(centipawns)
}

// itoa is a tiny integer-to-string helper (avoids pulling in fmt here).
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
