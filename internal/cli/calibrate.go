package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"maxwell/internal/config"
	"maxwell/internal/fault"
	"maxwell/internal/ingest"
	"maxwell/internal/refdict"
	"maxwell/internal/tokenize"
	"maxwell/internal/workspace"
)

func (c *CLI) newCalibrateCommand() *cobra.Command {
	var humanCorpus, synthCorpus []string
	var humanURL, synthURL, freqList, humanOut, synthOut, workdir string
	var smoothingK, unknownProb float64
	var flags scoringFlags

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Build the human and synthetic reference dictionaries",
		Example: `  maxwell calibrate --human-corpus corpora/human --synthetic-corpus corpora/synthetic
  maxwell calibrate --frequency-list it_50k.txt
  maxwell calibrate --human-url https://example.org/corpus.txt.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			set := cmd.Flags().Changed
			if set("smoothing-k") {
				cfg.Reference.SmoothingK = smoothingK
			}
			if set("unknown-prob") {
				cfg.Reference.UnknownProb = unknownProb
			}
			if len(humanCorpus) > 0 {
				cfg.Reference.HumanCorpusPath = strings.Join(humanCorpus, ",")
			}
			if len(synthCorpus) > 0 {
				cfg.Reference.SyntheticCorpusPath = strings.Join(synthCorpus, ",")
			}
			if humanURL != "" {
				cfg.Reference.HumanURL = humanURL
			}
			if synthURL != "" {
				cfg.Reference.SyntheticURL = synthURL
			}
			if freqList != "" {
				cfg.Reference.FrequencyListPath = freqList
			}
			if humanOut != "" {
				cfg.Reference.HumanPath = humanOut
			}
			if synthOut != "" {
				cfg.Reference.SyntheticPath = synthOut
			}

			layout, err := workspace.EnsureAt(workdir)
			if err != nil {
				return fault.AsResource("calibrate", err)
			}
			return calibrate(cmd.Context(), cfg, layout)
		},
	}

	cmd.Flags().StringSliceVar(&humanCorpus, "human-corpus", nil, "Human corpus files or directories")
	cmd.Flags().StringSliceVar(&synthCorpus, "synthetic-corpus", nil, "Synthetic corpus files or directories")
	cmd.Flags().StringVar(&humanURL, "human-url", "", "Download the human corpus from this URL")
	cmd.Flags().StringVar(&synthURL, "synthetic-url", "", "Download the synthetic corpus from this URL")
	cmd.Flags().StringVar(&freqList, "frequency-list", "", "Build the human reference from a 'token count' list")
	cmd.Flags().StringVar(&humanOut, "human-out", "", "Human dictionary output path")
	cmd.Flags().StringVar(&synthOut, "synthetic-out", "", "Synthetic dictionary output path")
	cmd.Flags().StringVar(&workdir, "workdir", ".", "Workspace root for downloads")
	cmd.Flags().Float64Var(&smoothingK, "smoothing-k", 1.0, "Add-k smoothing constant")
	cmd.Flags().Float64Var(&unknownProb, "unknown-prob", 1e-10, "Unknown-token probability floor when smoothing-k is 0")
	flags.bind(cmd)
	return cmd
}

type corpusSource struct {
	name     string
	corpus   string
	url      string
	freqList string
	out      string
}

func calibrate(ctx context.Context, cfg config.Config, layout workspace.Layout) error {
	scoring, err := cfg.Scoring()
	if err != nil {
		return err
	}
	tok, err := tokenize.New(scoring.Policy)
	if err != nil {
		return err
	}
	ref := cfg.Reference
	if ref.FrequencyListPath != "" && (ref.HumanCorpusPath != "" || ref.HumanURL != "") {
		return fault.AsConfig("calibrate", fmt.Errorf("--frequency-list cannot be combined with --human-corpus or --human-url"))
	}
	sources := []corpusSource{
		{name: "human", corpus: cfg.Reference.HumanCorpusPath, url: cfg.Reference.HumanURL, freqList: cfg.Reference.FrequencyListPath, out: cfg.Reference.HumanPath},
		{name: "synthetic", corpus: cfg.Reference.SyntheticCorpusPath, url: cfg.Reference.SyntheticURL, out: cfg.Reference.SyntheticPath},
	}

	built := 0
	for _, src := range sources {
		counter, err := countSource(ctx, src, tok, scoring.Workers, layout)
		if err != nil {
			return err
		}
		if counter == nil {
			continue
		}
		d, err := refdict.BuildFromCounts(counter.Counts(), refdict.BuildOptions{
			SmoothingK:   scoring.SmoothingK,
			UnknownFloor: scoring.UnknownProbability,
			Policy:       tok.Policy(),
		})
		if err != nil {
			return fmt.Errorf("%s reference: %w", src.name, err)
		}
		if err := d.Save(src.out); err != nil {
			return fault.AsResource("calibrate", err)
		}
		slog.Info("reference saved", "reference", src.name, "path", src.out,
			"tokens", d.TotalTokens(), "vocabulary", d.VocabularySize(), "tokenization", tok.Policy().Fingerprint())
		built++
	}
	if built == 0 {
		return fault.AsConfig("calibrate", fmt.Errorf("no corpus given: use --human-corpus, --synthetic-corpus, --frequency-list or a corpus URL"))
	}
	return nil
}

// countSource returns nil when src names no input at all.
func countSource(ctx context.Context, src corpusSource, tok *tokenize.Tokenizer, workers int, layout workspace.Layout) (*refdict.Counter, error) {
	if src.freqList != "" {
		f, err := os.Open(src.freqList)
		if err != nil {
			return nil, fault.AsResource("calibrate", err)
		}
		defer f.Close()
		return refdict.CountFrequencyList(f, tok)
	}

	var paths []string
	if src.corpus != "" {
		paths = strings.Split(src.corpus, ",")
	}
	if src.url != "" {
		name := strings.TrimSuffix(path.Base(src.url), ".gz")
		if !ingest.Supported(name) {
			name = src.name + "_corpus.txt"
		}
		dest := filepath.Join(layout.Raw, name)
		fetched, err := ingest.Download(ctx, nil, src.url, dest, ingest.DefaultUserAgent)
		if err != nil {
			return nil, fault.AsResource("calibrate", err)
		}
		slog.Info("corpus ready", "reference", src.name, "path", dest, "downloaded", fetched)
		paths = append(paths, dest)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	files, err := ingest.CollectCorpus(paths)
	if err != nil {
		return nil, fault.AsResource("calibrate", err)
	}
	counter, skipped, err := refdict.CountCorpus(ctx, files, ingest.EachLine, tok, workers, slog.Default())
	if err != nil {
		return nil, fault.AsResource("calibrate", err)
	}
	slog.Info("corpus counted", "reference", src.name, "files", len(files), "skipped", len(skipped), "tokens", counter.Total())
	return counter, nil
}
