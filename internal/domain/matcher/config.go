package matcher

import "time"

const (
	// DefaultTopK is the number of ranked matches returned to callers.
	DefaultTopK = 5
	// DefaultGoodMatchThreshold is the similarity the top match must exceed to count as a good match.
	DefaultGoodMatchThreshold = 0.7
)

// Config holds runtime knobs for the similarity matcher.
// Zero values fall back to DefaultTopK and DefaultGoodMatchThreshold.
type Config struct {
	TopK               int
	GoodMatchThreshold float64
	// Timeout bounds a whole AnalyzeQuestion call. Zero disables it.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.GoodMatchThreshold == 0 {
		c.GoodMatchThreshold = DefaultGoodMatchThreshold
	}
	return c
}
