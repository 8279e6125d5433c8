// Package refdict builds, persists and loads smoothed token probability
// dictionaries used as scoring references.
package refdict

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"maxwell/internal/fault"
	"maxwell/internal/tokenize"
)

var (
	ErrEmptyCorpus        = errors.New("corpus produced no tokens")
	ErrInvalidSmoothing   = errors.New("smoothing_k must be >= 0")
	ErrZeroProbability    = errors.New("unknown-token probability would be zero")
	ErrInvalidDictionary  = errors.New("invalid reference dictionary")
	ErrPolicyMismatch     = errors.New("tokenization policy differs from dictionary calibration")
	ErrMalformedFrequency = errors.New("malformed frequency list")
	ErrFrequencyPolicy    = errors.New("frequency lists require the legacy tokenization policy")
)

// massTolerance absorbs float summation error over large vocabularies.
const massTolerance = 1e-9

type BuildOptions struct {
	SmoothingK   float64
	UnknownFloor float64
	Policy       tokenize.Policy
}

// Dictionary is immutable after construction and safe for concurrent reads.
type Dictionary struct {
	probs       map[string]float64
	unknown     float64
	smoothingK  float64
	totalTokens int64
	vocabSize   int
	policy      tokenize.Policy
	hasPolicy   bool
}

func (d *Dictionary) Prob(token string) float64 {
	if p, ok := d.probs[token]; ok {
		return p
	}
	return d.unknown
}

func (d *Dictionary) Known(token string) bool {
	_, ok := d.probs[token]
	return ok
}

func (d *Dictionary) Unknown() float64        { return d.unknown }
func (d *Dictionary) SmoothingK() float64     { return d.smoothingK }
func (d *Dictionary) TotalTokens() int64      { return d.totalTokens }
func (d *Dictionary) VocabularySize() int     { return d.vocabSize }
func (d *Dictionary) Len() int                { return len(d.probs) }
func (d *Dictionary) Policy() tokenize.Policy { return d.policy }

// HasPolicy reports whether the calibration policy is known. Dictionaries
// loaded without a metadata sidecar do not carry one.
func (d *Dictionary) HasPolicy() bool { return d.hasPolicy }

// KnownMass is the total probability assigned to known tokens.
func (d *Dictionary) KnownMass() float64 {
	keys := d.Tokens()
	sum := 0.0
	for _, k := range keys {
		sum += d.probs[k]
	}
	return sum
}

// Tokens returns the known tokens in sorted order.
func (d *Dictionary) Tokens() []string {
	keys := make([]string, 0, len(d.probs))
	for k := range d.probs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func Build(tokens []string, opts BuildOptions) (*Dictionary, error) {
	c := NewCounter()
	c.Add(tokens)
	return BuildFromCounts(c.Counts(), opts)
}

// BuildFromCounts applies add-k smoothing:
//
//	P(t)   = (c+k) / (N+kV)
//	P(unk) =  k    / (N+kV)
//
// With k == 0 the unknown probability is the explicit floor, which must be
// positive.
func BuildFromCounts(counts map[string]int64, opts BuildOptions) (*Dictionary, error) {
	k := opts.SmoothingK
	if k < 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return nil, fault.AsConfig("refdict.Build", fmt.Errorf("%w: got %v", ErrInvalidSmoothing, k))
	}
	if k == 0 && !(opts.UnknownFloor > 0 && opts.UnknownFloor <= 1) {
		return nil, fault.AsNumeric("refdict.Build", fmt.Errorf("%w: smoothing_k is 0 and no unknown floor was given", ErrZeroProbability))
	}

	var total int64
	vocab := 0
	for tok, n := range counts {
		if n < 0 {
			return nil, fault.AsResource("refdict.Build", fmt.Errorf("negative count %d for token %q", n, tok))
		}
		if n == 0 {
			continue
		}
		total += n
		vocab++
	}
	if total == 0 {
		return nil, fault.AsResource("refdict.Build", ErrEmptyCorpus)
	}

	denom := float64(total) + k*float64(vocab)
	probs := make(map[string]float64, vocab)
	for tok, n := range counts {
		if n == 0 {
			continue
		}
		probs[tok] = (float64(n) + k) / denom
	}
	unknown := opts.UnknownFloor
	if k > 0 {
		unknown = k / denom
	}

	policy, err := opts.Policy.Canonical()
	hasPolicy := err == nil
	if !hasPolicy {
		policy = opts.Policy
	}
	return &Dictionary{
		probs:       probs,
		unknown:     unknown,
		smoothingK:  k,
		totalTokens: total,
		vocabSize:   vocab,
		policy:      policy,
		hasPolicy:   hasPolicy,
	}, nil
}

// CheckPolicy fails when d was calibrated under a tokenization that differs
// from p. Dictionaries without recorded policy pass.
func CheckPolicy(d *Dictionary, p tokenize.Policy) error {
	if d == nil || !d.hasPolicy {
		return nil
	}
	if d.policy.Equivalent(p) {
		return nil
	}
	return fault.AsConfig("refdict.CheckPolicy", fmt.Errorf("%w: dictionary uses %s, configured %s",
		ErrPolicyMismatch, d.policy.Fingerprint(), p.Fingerprint()))
}
