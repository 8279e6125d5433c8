// Package config loads run settings from TOML, YAML or JSON files and from
// MAXWELL_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"maxwell/internal/aidetect"
	"maxwell/internal/chunk"
	"maxwell/internal/compress"
	"maxwell/internal/fault"
	"maxwell/internal/surprisal"
	"maxwell/internal/tokenize"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Analysis struct {
	Window  int     `json:"window" toml:"window" yaml:"window"`
	Step    int     `json:"step" toml:"step" yaml:"step"`
	LogBase float64 `json:"log_base" toml:"log_base" yaml:"log_base"`
	Mode    string  `json:"mode" toml:"mode" yaml:"mode"`
	Workers int     `json:"workers" toml:"workers" yaml:"workers"`
}

type Compression struct {
	Algorithm string `json:"algorithm" toml:"algorithm" yaml:"algorithm"`
}

type Reference struct {
	HumanPath           string  `json:"human_path" toml:"human_path" yaml:"human_path"`
	SyntheticPath       string  `json:"synthetic_path" toml:"synthetic_path" yaml:"synthetic_path"`
	HumanCorpusPath     string  `json:"human_corpus_path,omitempty" toml:"human_corpus_path" yaml:"human_corpus_path"`
	SyntheticCorpusPath string  `json:"synthetic_corpus_path,omitempty" toml:"synthetic_corpus_path" yaml:"synthetic_corpus_path"`
	HumanURL            string  `json:"human_url,omitempty" toml:"human_url" yaml:"human_url"`
	SyntheticURL        string  `json:"synthetic_url,omitempty" toml:"synthetic_url" yaml:"synthetic_url"`
	FrequencyListPath   string  `json:"frequency_list_path,omitempty" toml:"frequency_list_path" yaml:"frequency_list_path"`
	SmoothingK          float64 `json:"smoothing_k" toml:"smoothing_k" yaml:"smoothing_k"`
	UnknownProb         float64 `json:"unknown_prob" toml:"unknown_prob" yaml:"unknown_prob"`
}

type Output struct {
	DataDir string `json:"data_dir" toml:"data_dir" yaml:"data_dir"`
	DBPath  string `json:"db_path,omitempty" toml:"db_path" yaml:"db_path"`
	Report  bool   `json:"report" toml:"report" yaml:"report"`
}

type Config struct {
	Analysis     Analysis        `json:"analysis" toml:"analysis" yaml:"analysis"`
	Compression  Compression     `json:"compression" toml:"compression" yaml:"compression"`
	Reference    Reference       `json:"reference" toml:"reference" yaml:"reference"`
	Tokenization tokenize.Policy `json:"tokenization" toml:"tokenization" yaml:"tokenization"`
	Output       Output          `json:"output" toml:"output" yaml:"output"`
}

func Defaults() Config {
	return Config{
		Analysis: Analysis{
			Window:  50,
			Step:    10,
			LogBase: math.E,
			Mode:    string(surprisal.ModeRaw),
		},
		Compression: Compression{Algorithm: string(compress.Default)},
		Reference: Reference{
			HumanPath:     filepath.Join("data", "reference", "human_ref_dict.json"),
			SyntheticPath: filepath.Join("data", "reference", "synthetic_ref_dict.json"),
			SmoothingK:    1.0,
			UnknownProb:   1e-10,
		},
		Tokenization: tokenize.DefaultPolicy(),
		Output: Output{
			DataDir: filepath.Join("results", "{dataset}", "data"),
			Report:  true,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fault.AsConfig("load config", fmt.Errorf("read %s: %w", path, err))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return cfg, fault.AsConfig("load config", fmt.Errorf("decode toml %s: %w", path, err))
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fault.AsConfig("load config", fmt.Errorf("decode yaml %s: %w", path, err))
		}
	case ".json":
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fault.AsConfig("load config", fmt.Errorf("decode json %s: %w", path, err))
		}
	default:
		return cfg, fault.AsConfig("load config", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path))
	}
	return cfg, nil
}

func (c *Config) ApplyEnvOverrides() {
	c.Analysis.Window = getenvInt("MAXWELL_WINDOW", c.Analysis.Window)
	c.Analysis.Step = getenvInt("MAXWELL_STEP", c.Analysis.Step)
	c.Analysis.LogBase = getenvFloat("MAXWELL_LOG_BASE", c.Analysis.LogBase)
	c.Analysis.Mode = getenvString("MAXWELL_MODE", c.Analysis.Mode)
	c.Analysis.Workers = getenvInt("MAXWELL_WORKERS", c.Analysis.Workers)
	c.Compression.Algorithm = getenvString("MAXWELL_COMPRESSION", c.Compression.Algorithm)
	c.Reference.HumanPath = getenvString("MAXWELL_HUMAN_REF", c.Reference.HumanPath)
	c.Reference.SyntheticPath = getenvString("MAXWELL_SYNTHETIC_REF", c.Reference.SyntheticPath)
	c.Reference.SmoothingK = getenvFloat("MAXWELL_SMOOTHING_K", c.Reference.SmoothingK)
	c.Reference.UnknownProb = getenvFloat("MAXWELL_UNKNOWN_PROB", c.Reference.UnknownProb)
	c.Tokenization.Method = tokenize.Method(getenvString("MAXWELL_TOKENIZATION_METHOD", string(c.Tokenization.Method)))
	c.Tokenization.EncodingName = getenvString("MAXWELL_ENCODING", c.Tokenization.EncodingName)
	c.Tokenization.IncludePunctuation = getenvBool("MAXWELL_INCLUDE_PUNCTUATION", c.Tokenization.IncludePunctuation)
	c.Tokenization.FallbackToLegacy = getenvBool("MAXWELL_FALLBACK_TO_LEGACY", c.Tokenization.FallbackToLegacy)
	c.Output.DataDir = getenvString("MAXWELL_DATA_DIR", c.Output.DataDir)
	c.Output.DBPath = getenvString("MAXWELL_DB_PATH", c.Output.DBPath)
	c.Output.Report = getenvBool("MAXWELL_REPORT", c.Output.Report)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs ValidationErrors
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	if c.Analysis.Window <= 0 {
		add("analysis.window", chunk.ErrInvalidWindow)
	}
	if c.Analysis.Step <= 0 {
		add("analysis.step", chunk.ErrInvalidWindow)
	}
	add("analysis.log_base", surprisal.ValidateLogBase(c.Analysis.LogBase))
	_, err := surprisal.ParseMode(c.Analysis.Mode)
	add("analysis.mode", err)
	if c.Analysis.Workers < 0 {
		add("analysis.workers", errors.New("must not be negative"))
	}
	_, err = compress.ParseCodec(c.Compression.Algorithm)
	add("compression.algorithm", err)
	_, err = tokenize.ParseMethod(string(c.Tokenization.Method))
	add("tokenization.method", err)
	if c.Reference.SmoothingK < 0 || math.IsNaN(c.Reference.SmoothingK) {
		add("reference.smoothing_k", errors.New("must be >= 0"))
	}
	if !(c.Reference.UnknownProb >= 0 && c.Reference.UnknownProb < 1) {
		add("reference.unknown_prob", errors.New("must be in [0, 1)"))
	}
	if c.Reference.SmoothingK == 0 && c.Reference.UnknownProb == 0 {
		add("reference.unknown_prob", errors.New("must be positive when smoothing_k is 0"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fault.AsConfig("validate config", errs)
}

// Scoring projects the settings the engines consume.
type Scoring struct {
	WindowSize         int
	Step               int
	LogBase            float64
	Compression        compress.Codec
	Policy             tokenize.Policy
	SmoothingK         float64
	UnknownProbability float64
	Workers            int
}

func (c Config) Scoring() (Scoring, error) {
	if err := c.Validate(); err != nil {
		return Scoring{}, err
	}
	codec, _ := compress.ParseCodec(c.Compression.Algorithm)
	policy, err := c.Tokenization.Canonical()
	if err != nil {
		return Scoring{}, fault.AsConfig("validate config", err)
	}
	workers := c.Analysis.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return Scoring{
		WindowSize:         c.Analysis.Window,
		Step:               c.Analysis.Step,
		LogBase:            c.Analysis.LogBase,
		Compression:        codec,
		Policy:             policy,
		SmoothingK:         c.Reference.SmoothingK,
		UnknownProbability: c.Reference.UnknownProb,
		Workers:            workers,
	}, nil
}

func (s Scoring) Engine() aidetect.Config {
	return aidetect.Config{
		Window:      s.WindowSize,
		Step:        s.Step,
		LogBase:     s.LogBase,
		Compression: s.Compression,
		Workers:     s.Workers,
	}
}

func getenvString(name, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

func getenvInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	return raw == "1" || raw == "true" || raw == "yes" || raw == "on"
}
