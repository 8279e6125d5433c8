package refdict

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maxwell/internal/fault"
	"maxwell/internal/tokenize"
)

func TestBuildAddK(t *testing.T) {
	d, err := Build([]string{"a", "a", "b"}, BuildOptions{SmoothingK: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, d.Prob("a"), 1e-12)
	assert.InDelta(t, 0.4, d.Prob("b"), 1e-12)
	assert.InDelta(t, 0.2, d.Prob("zzz"), 1e-12)
	assert.InDelta(t, 0.2, d.Unknown(), 1e-12)
	assert.Equal(t, int64(3), d.TotalTokens())
	assert.Equal(t, 2, d.VocabularySize())
	assert.True(t, d.Known("a"))
	assert.False(t, d.Known("zzz"))
}

func TestBuildNoSmoothingNeedsFloor(t *testing.T) {
	_, err := Build([]string{"a", "b"}, BuildOptions{SmoothingK: 0})
	require.ErrorIs(t, err, ErrZeroProbability)
	assert.Equal(t, fault.Numeric, fault.KindOf(err))

	d, err := Build([]string{"a", "a", "b", "c"}, BuildOptions{SmoothingK: 0, UnknownFloor: 1e-10})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d.Prob("a"), 1e-12)
	assert.InDelta(t, 1e-10, d.Prob("missing"), 1e-20)
}

func TestBuildRejectsNegativeSmoothing(t *testing.T) {
	_, err := Build([]string{"a"}, BuildOptions{SmoothingK: -0.5})
	require.ErrorIs(t, err, ErrInvalidSmoothing)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))
}

func TestBuildEmptyCorpus(t *testing.T) {
	_, err := Build(nil, BuildOptions{SmoothingK: 1})
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestMassAtMostOne(t *testing.T) {
	tokens := strings.Fields("the cat sat on the mat and the dog sat on the log")
	for _, k := range []float64{0.01, 0.5, 1, 3} {
		d, err := Build(tokens, BuildOptions{SmoothingK: k})
		require.NoError(t, err)
		mass := d.KnownMass()
		assert.LessOrEqual(t, mass, 1+massTolerance, "k=%v", k)
		for _, tok := range d.Tokens() {
			p := d.Prob(tok)
			assert.Greater(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}
		assert.Greater(t, d.Unknown(), 0.0)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref", "human.json")
	policy := tokenize.DefaultPolicy()
	d, err := Build(strings.Fields("alpha beta beta gamma gamma gamma ünïcode"), BuildOptions{SmoothingK: 0.5, Policy: policy})
	require.NoError(t, err)
	require.NoError(t, d.Save(path))

	loaded, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, d.Len(), loaded.Len())
	for _, tok := range d.Tokens() {
		assert.Equal(t, d.Prob(tok), loaded.Prob(tok), "token %q", tok)
	}
	assert.Equal(t, d.Unknown(), loaded.Unknown())
	assert.Equal(t, d.SmoothingK(), loaded.SmoothingK())
	assert.Equal(t, d.TotalTokens(), loaded.TotalTokens())
	assert.True(t, loaded.HasPolicy())
	require.NoError(t, CheckPolicy(loaded, policy))

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	again := filepath.Join(dir, "again.json")
	require.NoError(t, loaded.Save(again))
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLoadWithoutSidecarUsesConfiguredUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": 0.5, "b": 0.25}`), 0o644))

	_, err := Load(path, LoadOptions{})
	require.ErrorIs(t, err, ErrZeroProbability)

	d, err := Load(path, LoadOptions{UnknownProbability: 1e-10})
	require.NoError(t, err)
	assert.Equal(t, 1e-10, d.Prob("c"))
	assert.False(t, d.HasPolicy())
	assert.NoError(t, CheckPolicy(d, tokenize.LegacyPolicy()))
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"a": `,
		"array":         `[0.1, 0.2]`,
		"empty":         `{}`,
		"string value":  `{"a": "0.5"}`,
		"zero":          `{"a": 0}`,
		"negative":      `{"a": -0.1}`,
		"above one":     `{"a": 1.5}`,
		"mass exceeded": `{"a": 0.6, "b": 0.6}`,
	}
	dir := t.TempDir()
	i := 0
	for name, body := range cases {
		i++
		path := filepath.Join(dir, fmt.Sprintf("bad%d.json", i))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path, LoadOptions{UnknownProbability: 1e-10})
		if !errors.Is(err, ErrInvalidDictionary) {
			t.Fatalf("%s: expected ErrInvalidDictionary, got %v", name, err)
		}
		if fault.KindOf(err) != fault.Resource {
			t.Fatalf("%s: expected resource fault, got %s", name, fault.KindOf(err))
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), LoadOptions{UnknownProbability: 1e-10})
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, fault.Resource, fault.KindOf(err))
}

func TestCheckPolicyMismatch(t *testing.T) {
	d, err := Build([]string{"x"}, BuildOptions{SmoothingK: 1, Policy: tokenize.LegacyPolicy()})
	require.NoError(t, err)
	err = CheckPolicy(d, tokenize.DefaultPolicy())
	require.ErrorIs(t, err, ErrPolicyMismatch)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))
}

func TestParseFrequencyList(t *testing.T) {
	in := "# word counts\nthe 10\n\nof 5\nthe 2\n"
	c, err := ParseFrequencyList(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.Counts()["the"])
	assert.Equal(t, int64(17), c.Total())

	_, err = ParseFrequencyList(strings.NewReader("the 10\nbroken\n"))
	require.ErrorIs(t, err, ErrMalformedFrequency)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCountCorpusMerges(t *testing.T) {
	texts := map[string][]string{
		"a.txt": {"one two\n", "two"},
		"b.txt": {"two three"},
		"c.txt": {"Three!"},
	}
	lines := func(p string, fn func(string)) error {
		ls, ok := texts[p]
		if !ok {
			return os.ErrNotExist
		}
		for _, l := range ls {
			fn(l)
		}
		return nil
	}
	tok, err := tokenize.New(tokenize.LegacyPolicy())
	require.NoError(t, err)

	c, skipped, err := CountCorpus(context.Background(), []string{"a.txt", "b.txt", "c.txt"}, lines, tok, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, map[string]int64{"one": 1, "two": 3, "three": 2}, c.Counts())

	c, skipped, err = CountCorpus(context.Background(), []string{"a.txt", "missing.txt"}, lines, tok, 2, nil)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "missing.txt", skipped[0].Path)
	assert.ErrorIs(t, skipped[0].Err, os.ErrNotExist)
	assert.Equal(t, int64(3), c.Total())

	_, _, err = CountCorpus(context.Background(), []string{"missing.txt"}, lines, tok, 2, nil)
	require.ErrorIs(t, err, ErrEmptyCorpus)
	assert.Equal(t, fault.Resource, fault.KindOf(err))
}

func TestFrequencyListMatchesCorpus(t *testing.T) {
	tok, err := tokenize.New(tokenize.LegacyPolicy())
	require.NoError(t, err)
	opts := BuildOptions{SmoothingK: 1, Policy: tok.Policy()}

	fromList, err := CountFrequencyList(strings.NewReader("The 2\nhouse 1\nis 1\nred, 1\n"), tok)
	require.NoError(t, err)

	corpus := func(_ string, fn func(string)) error {
		fn("the house is red the")
		return nil
	}
	fromCorpus, _, err := CountCorpus(context.Background(), []string{"corpus.txt"}, corpus, tok, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, fromCorpus.Counts(), fromList.Counts())

	a, err := BuildFromCounts(fromList.Counts(), opts)
	require.NoError(t, err)
	b, err := BuildFromCounts(fromCorpus.Counts(), opts)
	require.NoError(t, err)
	assert.Equal(t, b.Tokens(), a.Tokens())
	for _, w := range b.Tokens() {
		assert.InDelta(t, b.Prob(w), a.Prob(w), 1e-15, w)
	}
	assert.InDelta(t, b.Unknown(), a.Unknown(), 1e-15)
}

func TestFrequencyListSplitsEntries(t *testing.T) {
	tok, err := tokenize.New(tokenize.LegacyPolicy())
	require.NoError(t, err)
	c, err := CountFrequencyList(strings.NewReader("don't 3\n"), tok)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"don": 3, "t": 3}, c.Counts())
}

type subwordStub struct{}

func (subwordStub) Tokenize(text string) []string { return strings.Fields(text) }
func (subwordStub) Policy() tokenize.Policy      { return tokenize.DefaultPolicy() }

func TestFrequencyListRejectsSubword(t *testing.T) {
	_, err := CountFrequencyList(strings.NewReader("the 1\n"), subwordStub{})
	require.ErrorIs(t, err, ErrFrequencyPolicy)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))
}
