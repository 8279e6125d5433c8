package refdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"maxwell/internal/fault"
	"maxwell/internal/tokenize"
)

const MetaSuffix = ".meta.json"

type Meta struct {
	UnknownProbability float64          `json:"unknown_probability"`
	SmoothingK         float64          `json:"smoothing_k"`
	TotalTokenCount    int64            `json:"total_token_count"`
	VocabularySize     int              `json:"vocabulary_size"`
	Tokenization       *tokenize.Policy `json:"tokenization,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

type LoadOptions struct {
	// UnknownProbability is used when no metadata sidecar exists.
	UnknownProbability float64
}

func MetaPath(path string) string { return path + MetaSuffix }

// Save writes the token map to path and the metadata to path+".meta.json".
func (d *Dictionary) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	raw, err := marshalIndent(d.probs)
	if err != nil {
		return fmt.Errorf("marshal dictionary: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write dictionary: %w", err)
	}

	meta := Meta{
		UnknownProbability: d.unknown,
		SmoothingK:         d.smoothingK,
		TotalTokenCount:    d.totalTokens,
		VocabularySize:     d.vocabSize,
		CreatedAt:          time.Now().UTC(),
	}
	if d.hasPolicy {
		p := d.policy
		meta.Tokenization = &p
	}
	rawMeta, err := marshalIndent(meta)
	if err != nil {
		return fmt.Errorf("marshal dictionary metadata: %w", err)
	}
	if err := os.WriteFile(MetaPath(path), rawMeta, 0o644); err != nil {
		return fmt.Errorf("write dictionary metadata: %w", err)
	}
	return nil
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads and validates a dictionary. The file must be a non-empty JSON
// object of finite probabilities in (0,1] whose sum does not exceed 1.
func Load(path string, opts LoadOptions) (*Dictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.AsResource("refdict.Load", fmt.Errorf("read dictionary %s: %w", path, err))
	}
	probs, err := decodeProbs(raw)
	if err != nil {
		return nil, fault.AsResource("refdict.Load", fmt.Errorf("%s: %w", path, err))
	}

	d := &Dictionary{
		probs:     probs,
		unknown:   opts.UnknownProbability,
		vocabSize: len(probs),
	}
	meta, err := loadMeta(MetaPath(path))
	switch {
	case err == nil:
		d.unknown = meta.UnknownProbability
		d.smoothingK = meta.SmoothingK
		d.totalTokens = meta.TotalTokenCount
		if meta.VocabularySize > 0 {
			d.vocabSize = meta.VocabularySize
		}
		if meta.Tokenization != nil {
			p, perr := meta.Tokenization.Canonical()
			if perr != nil {
				return nil, fault.AsResource("refdict.Load", fmt.Errorf("%w: metadata tokenization: %v", ErrInvalidDictionary, perr))
			}
			d.policy = p
			d.hasPolicy = true
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fault.AsResource("refdict.Load", err)
	}

	if !(d.unknown > 0 && d.unknown <= 1) || math.IsNaN(d.unknown) {
		return nil, fault.AsNumeric("refdict.Load", fmt.Errorf("%w: %s has unknown probability %v", ErrZeroProbability, path, d.unknown))
	}
	return d, nil
}

func decodeProbs(raw []byte) (map[string]float64, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidDictionary, err)
	}
	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object of token to probability", ErrInvalidDictionary)
	}
	if len(obj) == 0 {
		return nil, fmt.Errorf("%w: no tokens", ErrInvalidDictionary)
	}

	probs := make(map[string]float64, len(obj))
	for tok, v := range obj {
		p, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: token %q has non-numeric value", ErrInvalidDictionary, tok)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 || p > 1 {
			return nil, fmt.Errorf("%w: token %q has probability %v outside (0,1]", ErrInvalidDictionary, tok, p)
		}
		probs[tok] = p
	}
	if mass := sumSorted(probs); mass > 1+massTolerance {
		return nil, fmt.Errorf("%w: probabilities sum to %v", ErrInvalidDictionary, mass)
	}
	return probs, nil
}

func sumSorted(probs map[string]float64) float64 {
	d := Dictionary{probs: probs}
	return d.KnownMass()
}

func loadMeta(path string) (Meta, error) {
	var meta Meta
	raw, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("%w: decode metadata %s: %v", ErrInvalidDictionary, path, err)
	}
	return meta, nil
}
