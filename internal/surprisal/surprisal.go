// Package surprisal converts tokens into information content against a
// reference distribution or against the window's own distribution.
package surprisal

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"maxwell/internal/fault"
)

var (
	ErrInvalidLogBase = errors.New("log base must be > 0 and != 1")
	ErrUnknownMode    = errors.New("unknown analysis mode")
)

type Mode string

const (
	// ModeRaw measures a window against its own token distribution.
	ModeRaw Mode = "raw"
	// ModeDiff measures a window against a reference dictionary.
	ModeDiff Mode = "diff"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeRaw:
		return ModeRaw, nil
	case ModeDiff:
		return ModeDiff, nil
	}
	return "", fault.AsConfig("surprisal", fmt.Errorf("%w: %q (expected raw or diff)", ErrUnknownMode, raw))
}

// Reference is the read-only view of a probability model needed for scoring.
type Reference interface {
	Prob(token string) float64
}

func ValidateLogBase(base float64) error {
	if math.IsNaN(base) || math.IsInf(base, 0) || base <= 0 || base == 1 {
		return fault.AsConfig("surprisal", fmt.Errorf("%w: got %v", ErrInvalidLogBase, base))
	}
	return nil
}

func logIn(p, base float64) float64 {
	if base == math.E {
		return math.Log(p)
	}
	return math.Log(p) / math.Log(base)
}

// Series returns -log_base P(t) for each token, in token order.
func Series(tokens []string, ref Reference, base float64) ([]float64, error) {
	if err := ValidateLogBase(base); err != nil {
		return nil, err
	}
	out := make([]float64, len(tokens))
	for i, t := range tokens {
		p := ref.Prob(t)
		if !(p > 0) {
			return nil, fault.AsNumeric("surprisal", fmt.Errorf("token %q has probability %v", t, p))
		}
		out[i] = -logIn(p, base)
	}
	return out, nil
}

// SelfSeries scores each token against the empirical distribution of tokens
// itself. Its mean equals Entropy(tokens, base).
func SelfSeries(tokens []string, base float64) ([]float64, error) {
	if err := ValidateLogBase(base); err != nil {
		return nil, err
	}
	counts := countTokens(tokens)
	n := float64(len(tokens))
	out := make([]float64, len(tokens))
	for i, t := range tokens {
		out[i] = -logIn(float64(counts[t])/n, base)
	}
	return out, nil
}

// Entropy is the Shannon entropy of the empirical token distribution. Empty
// input has zero entropy.
func Entropy(tokens []string, base float64) (float64, error) {
	if err := ValidateLogBase(base); err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	counts := countTokens(tokens)
	n := float64(len(tokens))
	h := 0.0
	for _, c := range counts {
		p := float64(c) / n
		h -= p * logIn(p, base)
	}
	return h, nil
}

func countTokens(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
