package engine

// LCG is the run's deterministic generator. The constants are the
// Numerical Recipes ones, so a seed replays the same draws everywhere.
type LCG struct {
	state uint32
}

// NewLCG reduces seed modulo 2^32. Seed 0 maps to 1.
func NewLCG(seed int64) *LCG {
	s := uint32(seed)
	if s == 0 {
		s = 1
	}
	return &LCG{state: s}
}

// Next advances the generator and returns the new state.
func (l *LCG) Next() uint32 {
	l.state = l.state*1664525 + 1013904223
	return l.state
}

// Float64 advances the generator and returns state/2^32 in [0,1).
func (l *LCG) Float64() float64 {
	return float64(l.Next()) / 4294967296
}
