package strategy

import "sync"

// vote is a formula's raw opinion: the winning side and how many of its
// conditions held.
type vote struct {
	dir   Direction
	met   int
	total int
}

var noVote = vote{dir: Skip}

// stats is the adaptive input a formula may read.
type stats struct {
	winRate float64 // fraction in [0,1]; 0.5 before any result
}

type formula func(w []float64, st stats) vote

// score picks the side with more satisfied conditions. Ties are no vote.
func score(call, put []bool) vote {
	c, p := count(call), count(put)
	switch {
	case c > p:
		return vote{dir: Call, met: c, total: len(call)}
	case p > c:
		return vote{dir: Put, met: p, total: len(put)}
	default:
		return noVote
	}
}

func count(conds []bool) int {
	n := 0
	for _, ok := range conds {
		if ok {
			n++
		}
	}
	return n
}

// Confidence maps a vote onto [0.55, 0.90].
func confidence(met, total int) float64 {
	if total == 0 {
		return 0
	}
	return 0.55 + 0.35*float64(met)/float64(total)
}

// rule wraps a formula with trading-mode gating and a tick cooldown.
type rule struct {
	id        string
	minLength int
	eval      formula
	mode      TradingMode

	mu         sync.Mutex
	analyzed   int
	lastSignal int
	wins       int
	losses     int
}

func newRule(id string, minLength int, eval formula, mode TradingMode) *rule {
	r := &rule{id: id, minLength: minLength, eval: eval, mode: mode}
	r.lastSignal = -mode.Cooldown
	return r
}

func (r *rule) ID() string      { return r.id }
func (r *rule) MinLength() int { return r.minLength }

// Analyze evaluates the formula unless the window is short or the cooldown
// since the last emitted signal has not elapsed.
func (r *rule) Analyze(window []float64) Signal {
	if len(window) < r.minLength {
		return skip("warming_up")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.analyzed++
	if r.analyzed-r.lastSignal < r.mode.Cooldown {
		return skip("cooldown")
	}

	v := r.eval(window, r.statsLocked())
	if v.dir == Skip || v.total == 0 {
		return skip("no_setup")
	}
	need := r.mode.MinConditions
	if need > v.total {
		need = v.total
	}
	if v.met < need {
		return skip("conditions")
	}
	conf := confidence(v.met, v.total)
	if conf+1e-9 < r.mode.MinConfidence {
		return skip("confidence")
	}

	r.lastSignal = r.analyzed
	return Signal{Direction: v.dir, Confidence: conf}
}

func (r *rule) OnTradeResult(won bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if won {
		r.wins++
	} else {
		r.losses++
	}
}

func (r *rule) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzed = 0
	r.lastSignal = -r.mode.Cooldown
	r.wins, r.losses = 0, 0
}

func (r *rule) statsLocked() stats {
	total := r.wins + r.losses
	if total == 0 {
		return stats{winRate: 0.5}
	}
	return stats{winRate: float64(r.wins) / float64(total)}
}
