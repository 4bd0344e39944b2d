// Package dice simulates tosses of a fair n-sided die and summarizes the
// empirical outcome distribution.
package dice

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidInput is returned for non-positive roll or side counts.
var ErrInvalidInput = errors.New("invalid input")

// Result holds the outcome counts of a simulation.
type Result struct {
	Rolls int
	// Counts[i] is how often side i+1 came up.
	Counts []int
}

// Sides is the number of faces on the simulated die.
func (r Result) Sides() int { return len(r.Counts) }

// Probabilities returns the empirical probability of every side, including
// sides that never came up.
func (r Result) Probabilities() []float64 {
	probs := make([]float64, len(r.Counts))
	for i, c := range r.Counts {
		probs[i] = float64(c) / float64(r.Rolls)
	}
	return probs
}

// ChiSquare returns Pearson's chi-square statistic of the counts against a
// fair die, and the probability of a statistic at least that large.
func (r Result) ChiSquare() (statistic, pValue float64) {
	if r.Sides() < 2 {
		return 0, 1
	}
	obs := make([]float64, r.Sides())
	exp := make([]float64, r.Sides())
	for i, c := range r.Counts {
		obs[i] = float64(c)
		exp[i] = float64(r.Rolls) / float64(r.Sides())
	}
	statistic = stat.ChiSquare(obs, exp)
	dist := distuv.ChiSquared{K: float64(r.Sides() - 1)}
	return statistic, 1 - dist.CDF(statistic)
}

// Roll tosses one die with the given number of sides.
func Roll(rng *rand.Rand, sides int) int {
	return rng.IntN(sides) + 1
}

// Simulate tosses a die rolls times.
func Simulate(rng *rand.Rand, rolls, sides int) (Result, error) {
	if rolls < 1 {
		return Result{}, fmt.Errorf("%w: rolls must be at least 1, got %d", ErrInvalidInput, rolls)
	}
	if sides < 1 {
		return Result{}, fmt.Errorf("%w: sides must be at least 1, got %d", ErrInvalidInput, sides)
	}

	counts := make([]int, sides)
	for i := 0; i < rolls; i++ {
		counts[Roll(rng, sides)-1]++
	}
	return Result{Rolls: rolls, Counts: counts}, nil
}

// NewRand returns a generator seeded with seed, or a randomly seeded one when
// seed is nil. Negative seeds are valid and distinct from positive ones.
func NewRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := uint64(*seed)
	return rand.New(rand.NewPCG(s, s))
}

// FormatCounts renders counts as "1=170 2=165 ...".
func FormatCounts(r Result) string {
	parts := make([]string, len(r.Counts))
	for i, c := range r.Counts {
		parts[i] = fmt.Sprintf("%d=%d", i+1, c)
	}
	return strings.Join(parts, " ")
}

// FormatProbabilities renders probabilities as "1=0.1700 2=0.1650 ...".
func FormatProbabilities(r Result) string {
	probs := r.Probabilities()
	parts := make([]string, len(probs))
	for i, p := range probs {
		parts[i] = fmt.Sprintf("%d=%.4f", i+1, p)
	}
	return strings.Join(parts, " ")
}

// Plot draws a horizontal bar chart of the probabilities. A full bar of width
// characters is probability 1.
func Plot(w io.Writer, r Result, width int) error {
	if width < 1 {
		width = 50
	}
	label := len(fmt.Sprint(r.Sides()))

	if _, err := fmt.Fprintln(w, "Dice Toss Simulation Probabilities"); err != nil {
		return err
	}
	for i, p := range r.Probabilities() {
		n := int(p*float64(width) + 0.5)
		bar := strings.Repeat("#", n) + strings.Repeat(" ", width-n)
		if _, err := fmt.Fprintf(w, "%*d |%s| %.4f\n", label, i+1, bar, p); err != nil {
			return err
		}
	}
	return nil
}
