package reminders

import "math/rand"

// RandSource abstracts randomness for deterministic testing.
type RandSource interface {
	// Float64 returns a pseudo-random float64 in the half-open interval [0.0, 1.0).
	Float64() float64
}

// defaultRand uses math/rand's global source.
type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }

// Gate is the stateless injection policy: one uniform draw per message
// against the resolved injection rate. Nothing persists across calls.
type Gate struct {
	rand RandSource
}

// NewGate creates a gate. A nil source uses math/rand's default.
func NewGate(src RandSource) *Gate {
	if src == nil {
		src = defaultRand{}
	}
	return &Gate{rand: src}
}

// Allow reports whether injection occurs for the given rate. A rate of
// 0 (or less) never injects; 1 (or more) always does. The draw happens
// once per call — never cached or amortized.
func (g *Gate) Allow(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1.0 {
		return true
	}
	return g.rand.Float64() < rate
}
