// Package tokenize turns raw text into token sequences under a fixed policy.
// The same policy must be used when calibrating a reference dictionary and
// when scoring text against it.
package tokenize

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"maxwell/internal/fault"
)

type Method string

const (
	MethodSubword Method = "subword"
	MethodLegacy  Method = "legacy"
)

const DefaultEncoding = "cl100k_base"

var (
	ErrUnsupportedMethod     = errors.New("unsupported tokenization method")
	ErrDependencyUnavailable = errors.New("subword tokenizer backend unavailable")
)

// punctuation is anything that is not a letter, digit, underscore or space.
// Combining marks count as punctuation, so decomposed accents are split off.
var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

type Policy struct {
	Method             Method `json:"method" toml:"method" yaml:"method"`
	EncodingName       string `json:"encoding_name,omitempty" toml:"encoding_name" yaml:"encoding_name"`
	IncludePunctuation bool   `json:"include_punctuation" toml:"include_punctuation" yaml:"include_punctuation"`
	FallbackToLegacy   bool   `json:"fallback_to_legacy" toml:"fallback_to_legacy" yaml:"fallback_to_legacy"`
}

func DefaultPolicy() Policy {
	return Policy{
		Method:             MethodSubword,
		EncodingName:       DefaultEncoding,
		IncludePunctuation: true,
		FallbackToLegacy:   true,
	}
}

func LegacyPolicy() Policy {
	return Policy{Method: MethodLegacy}
}

// ParseMethod accepts "tiktoken" as an alias of the subword method.
func ParseMethod(raw string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "subword", "tiktoken":
		return MethodSubword, nil
	case "legacy":
		return MethodLegacy, nil
	default:
		return "", fault.AsConfig("tokenize", fmt.Errorf("%w: %q", ErrUnsupportedMethod, raw))
	}
}

// Canonical returns the policy with its method resolved and subword-only
// fields cleared for the legacy method.
func (p Policy) Canonical() (Policy, error) {
	m, err := ParseMethod(string(p.Method))
	if err != nil {
		return Policy{}, err
	}
	p.Method = m
	if m == MethodLegacy {
		p.EncodingName = ""
		p.IncludePunctuation = false
		return p, nil
	}
	if strings.TrimSpace(p.EncodingName) == "" {
		p.EncodingName = DefaultEncoding
	}
	return p, nil
}

// Fingerprint identifies the token stream a policy produces. The fallback
// flag is excluded because it does not change the output of a working backend.
func (p Policy) Fingerprint() string {
	c, err := p.Canonical()
	if err != nil {
		return "invalid:" + string(p.Method)
	}
	if c.Method == MethodLegacy {
		return "legacy"
	}
	return fmt.Sprintf("subword/%s/punct=%t", c.EncodingName, c.IncludePunctuation)
}

func (p Policy) Equivalent(other Policy) bool {
	return p.Fingerprint() == other.Fingerprint()
}

type Tokenizer struct {
	policy   Policy
	degraded bool
	encoding *tiktoken.Tiktoken
}

// New resolves the policy once. Every later Tokenize call dispatches on the
// resolved method only.
func New(p Policy) (*Tokenizer, error) {
	return newWithLoader(p, loadEncoding)
}

func newWithLoader(p Policy, load func(string) (*tiktoken.Tiktoken, error)) (*Tokenizer, error) {
	c, err := p.Canonical()
	if err != nil {
		return nil, err
	}
	switch c.Method {
	case MethodLegacy:
		return &Tokenizer{policy: c}, nil
	case MethodSubword:
		enc, loadErr := load(c.EncodingName)
		if loadErr == nil {
			return &Tokenizer{policy: c, encoding: enc}, nil
		}
		if !c.FallbackToLegacy {
			return nil, fault.AsResource("tokenize", fmt.Errorf("%w: %v", ErrDependencyUnavailable, loadErr))
		}
		slog.Warn("subword tokenizer unavailable, falling back to legacy tokenization",
			"encoding", c.EncodingName, "error", loadErr)
		return &Tokenizer{policy: LegacyPolicy(), degraded: true}, nil
	}
	return nil, fault.AsConfig("tokenize", fmt.Errorf("%w: %q", ErrUnsupportedMethod, c.Method))
}

// Policy reports the effective policy; after a fallback this is legacy.
func (t *Tokenizer) Policy() Policy { return t.policy }

func (t *Tokenizer) Degraded() bool { return t.degraded }

func (t *Tokenizer) Tokenize(text string) []string {
	if t.policy.Method == MethodSubword {
		return t.subword(text)
	}
	return Legacy(text)
}

// Legacy lowercases, strips punctuation and splits on Unicode whitespace.
func Legacy(text string) []string {
	text = strings.ToLower(text)
	text = punctuation.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

func (t *Tokenizer) subword(text string) []string {
	if !t.policy.IncludePunctuation {
		text = punctuation.ReplaceAllString(text, " ")
	}
	ids := t.encoding.Encode(text, nil, nil)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strings.ToValidUTF8(t.encoding.Decode([]int{id}), "\uFFFD"))
	}
	return out
}

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
	loaderOnce    sync.Once
)

func loadEncoding(name string) (*tiktoken.Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	encodingMu.Lock()
	defer encodingMu.Unlock()
	if enc, ok := encodingCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	encodingCache[name] = enc
	return enc, nil
}
