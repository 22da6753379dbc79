package reminders

import (
	"testing"

	"github.com/nugget/remora/internal/config"
)

// testConfig parses inline YAML into a validated configuration.
func testConfig(t *testing.T, yml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yml))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return cfg
}

// matchedNames extracts the context names from a detection result.
func matchedNames(matched []MatchedContext) []string {
	names := make([]string, len(matched))
	for i, mc := range matched {
		names[i] = mc.Name
	}
	return names
}

// stubRand returns a fixed sequence of draws, cycling when exhausted.
type stubRand struct {
	draws []float64
	idx   int
}

func (s *stubRand) Float64() float64 {
	v := s.draws[s.idx%len(s.draws)]
	s.idx++
	return v
}
