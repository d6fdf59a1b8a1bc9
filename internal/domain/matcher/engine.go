package matcher

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/yanqian/support-copilot/internal/domain/support"
	apperrors "github.com/yanqian/support-copilot/pkg/errors"
)

// Engine ranks candidate records by cosine similarity to a query vector.
type Engine struct {
	threshold float64
}

// NewEngine constructs an engine that reports a good match strictly above threshold.
func NewEngine(threshold float64) Engine {
	return Engine{threshold: threshold}
}

// Rank scores every candidate and orders them by similarity, highest first.
// vectors[i] must belong to records[i]; ties keep their input order.
func (e Engine) Rank(query Vector, records []support.Record, vectors []Vector) ([]Match, error) {
	if len(records) != len(vectors) {
		return nil, apperrors.Wrap(CodeDimensionMismatch, fmt.Sprintf("got %d candidate vectors for %d records", len(vectors), len(records)), nil)
	}
	matches := make([]Match, 0, len(records))
	for i, record := range records {
		sim, err := Cosine(query, vectors[i])
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			Record:               record,
			Similarity:           sim,
			SimilarityPercentage: formatPercentage(sim),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

// IsGoodMatch reports whether the top ranked match clears the threshold.
func (e Engine) IsGoodMatch(matches []Match) bool {
	return len(matches) > 0 && matches[0].Similarity > e.threshold
}

// Top keeps the first k ranked matches. Non-positive k keeps everything.
func Top(matches []Match, k int) []Match {
	if k <= 0 || len(matches) <= k {
		return matches
	}
	return matches[:k]
}

// formatPercentage renders sim*100 with two decimals. Exact halfway values round
// away from zero instead of to even, so 12.625 becomes "12.63".
func formatPercentage(sim float64) string {
	v := sim * 100
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	if v == 0 {
		return "0.00"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	scaled := new(big.Float).SetPrec(256).SetFloat64(v)
	scaled.Mul(scaled, big.NewFloat(100))
	whole, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(scaled, new(big.Float).SetInt(whole))
	if frac.Cmp(big.NewFloat(0.5)) != 0 {
		return sign + strconv.FormatFloat(v, 'f', 2, 64)
	}
	digits := whole.Add(whole, big.NewInt(1)).String()
	for len(digits) < 3 {
		digits = "0" + digits
	}
	return sign + digits[:len(digits)-2] + "." + digits[len(digits)-2:]
}
