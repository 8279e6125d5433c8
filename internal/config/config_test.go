package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maxwell/internal/compress"
	"maxwell/internal/fault"
	"maxwell/internal/tokenize"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Analysis.Window)
	assert.Equal(t, 10, cfg.Analysis.Step)
	assert.Equal(t, math.E, cfg.Analysis.LogBase)
	assert.Equal(t, "lzma", cfg.Compression.Algorithm)
	assert.Equal(t, tokenize.MethodSubword, cfg.Tokenization.Method)
}

func TestLoadFormats(t *testing.T) {
	cases := map[string]string{
		"run.toml": "[analysis]\nwindow = 20\nstep = 5\n\n[compression]\nalgorithm = \"bz2\"\n\n[tokenization]\nmethod = \"legacy\"\n",
		"run.yaml": "analysis:\n  window: 20\n  step: 5\ncompression:\n  algorithm: bz2\ntokenization:\n  method: legacy\n",
		"run.json": `{"analysis":{"window":20,"step":5},"compression":{"algorithm":"bz2"},"tokenization":{"method":"legacy"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, body))
			require.NoError(t, err)
			assert.Equal(t, 20, cfg.Analysis.Window)
			assert.Equal(t, 5, cfg.Analysis.Step)
			assert.Equal(t, math.E, cfg.Analysis.LogBase, "unset fields keep defaults")
			assert.Equal(t, "bz2", cfg.Compression.Algorithm)
			assert.Equal(t, tokenize.MethodLegacy, cfg.Tokenization.Method)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))

	_, err = Load(writeFile(t, "run.ini", "window=1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "run.toml", "[analysis\nwindow = "))
	assert.Equal(t, fault.Configuration, fault.KindOf(err))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MAXWELL_WINDOW", "30")
	t.Setenv("MAXWELL_LOG_BASE", "2")
	t.Setenv("MAXWELL_COMPRESSION", "gzip")
	t.Setenv("MAXWELL_TOKENIZATION_METHOD", "legacy")
	t.Setenv("MAXWELL_REPORT", "no")
	t.Setenv("MAXWELL_STEP", "not-a-number")

	cfg := Defaults()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 30, cfg.Analysis.Window)
	assert.Equal(t, 10, cfg.Analysis.Step, "unparsable values keep the current setting")
	assert.Equal(t, 2.0, cfg.Analysis.LogBase)
	assert.Equal(t, "gzip", cfg.Compression.Algorithm)
	assert.Equal(t, tokenize.MethodLegacy, cfg.Tokenization.Method)
	assert.False(t, cfg.Output.Report)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.Window = 0
	cfg.Analysis.LogBase = 1
	cfg.Compression.Algorithm = "snappy"
	cfg.Tokenization.Method = "words"
	cfg.Reference.SmoothingK = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, fault.Configuration, fault.KindOf(err))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, len(verrs))
	for i, v := range verrs {
		fields[i] = v.Field
	}
	assert.Equal(t, []string{
		"analysis.window",
		"analysis.log_base",
		"compression.algorithm",
		"tokenization.method",
		"reference.smoothing_k",
	}, fields)
}

func TestValidateZeroSmoothingNeedsFloor(t *testing.T) {
	cfg := Defaults()
	cfg.Reference.SmoothingK = 0
	require.NoError(t, cfg.Validate())

	cfg.Reference.UnknownProb = 0
	assert.Error(t, cfg.Validate())
}

func TestScoringProjection(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.Workers = 3
	cfg.Compression.Algorithm = "ZLIB"
	cfg.Tokenization.Method = "tiktoken"
	cfg.Tokenization.EncodingName = ""

	s, err := cfg.Scoring()
	require.NoError(t, err)
	assert.Equal(t, compress.Zlib, s.Compression)
	assert.Equal(t, tokenize.MethodSubword, s.Policy.Method)
	assert.Equal(t, tokenize.DefaultEncoding, s.Policy.EncodingName)

	engine := s.Engine()
	assert.Equal(t, 50, engine.Window)
	assert.Equal(t, 3, engine.Workers)
	require.NoError(t, engine.Validate())
}
