package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"yashubustudio/phrasecluster/phrasecluster"
)

type cliOptions struct {
	configPath string
	inputPath  string
	column     string
	outputPath string
	outputDir  string
	k          string
	seed       string
	backend    string
	trashWords string
	userKeys   string
	stdout     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "phrasecluster-cli: %v\n", err)
		os.Exit(1)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "phrasecluster-cli: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "Path to config.json (default: ./config.json)")
	flag.StringVar(&opts.inputPath, "input", "", "CSV/TSV/text file containing phrases to cluster")
	flag.StringVar(&opts.column, "column", "", "Column name or #index holding the phrases")
	flag.StringVar(&opts.outputPath, "output", "", "File to write results (default uses --output-dir/clusters_*.csv)")
	flag.StringVar(&opts.outputDir, "output-dir", "csv", "Directory where result files are written when --output is omitted")
	flag.StringVar(&opts.k, "k", "", "Number of clusters, or \"auto\" for elbow selection")
	flag.StringVar(&opts.seed, "seed", "", "Random seed for deterministic clustering")
	flag.StringVar(&opts.backend, "backend", "", "Embedding backend: onnx or tfidf")
	flag.StringVar(&opts.trashWords, "trash", "", "Comma separated words that discard a phrase")
	flag.StringVar(&opts.userKeys, "keys", "", "Comma separated keywords pinned to their own clusters")
	flag.BoolVar(&opts.stdout, "stdout", false, "Print cluster summary to STDOUT")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --input FILE [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.column = strings.TrimSpace(opts.column)
	opts.outputPath = strings.TrimSpace(opts.outputPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)
	opts.k = strings.TrimSpace(opts.k)
	opts.seed = strings.TrimSpace(opts.seed)
	opts.backend = strings.TrimSpace(opts.backend)

	if opts.inputPath == "" {
		flag.Usage()
		return opts, errors.New("missing required --input file")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	cfg, err := phrasecluster.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	embedder, err := phrasecluster.NewEmbedder(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	defer embedder.Close()

	phrases, err := phrasecluster.LoadPhrasesColumn(opts.inputPath, opts.column)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(phrases) == 0 {
		return errors.New("input file does not contain any phrases")
	}

	notify := func(p phrasecluster.Progress) {
		logger.Debug().Str("state", string(p.State)).Int("count", p.Count).Msg("progress")
	}
	pipe, err := phrasecluster.NewPipeline(embedder, cfg, logger, notify)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	result, err := pipe.Run(context.Background(), phrases)
	if err != nil {
		return fmt.Errorf("cluster: %w", err)
	}

	outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir)
	if err != nil {
		return err
	}
	rows, err := phrasecluster.SaveResult(outputPath, result)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d rows across %d clusters to %s\n", rows, len(result.Clusters), outputPath)

	if opts.stdout {
		printSummary(result)
	}
	return nil
}

func applyOverrides(cfg *phrasecluster.Config, opts cliOptions) error {
	if opts.k != "" {
		if strings.EqualFold(opts.k, "auto") {
			cfg.Cluster.K = phrasecluster.AutoK
		} else {
			n, err := strconv.Atoi(opts.k)
			if err != nil || n <= 0 {
				return fmt.Errorf("--k must be a positive number or \"auto\"")
			}
			cfg.Cluster.K = phrasecluster.KSetting(n)
		}
	}
	if opts.seed != "" {
		seed, err := strconv.ParseInt(opts.seed, 10, 64)
		if err != nil {
			return fmt.Errorf("--seed must be an integer")
		}
		cfg.Cluster.Seed = &seed
	}
	if opts.backend != "" {
		cfg.Embedder.Backend = strings.ToLower(opts.backend)
	}
	if opts.trashWords != "" {
		cfg.Normalizer.TrashWords = splitList(opts.trashWords)
	}
	if opts.userKeys != "" {
		cfg.Normalizer.UserKeys = splitList(opts.userKeys)
	}
	return nil
}

func splitList(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("clusters_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func printSummary(result *phrasecluster.Result) {
	fmt.Println()
	fmt.Println("==== cluster summary ====")
	for _, c := range result.Clusters {
		fmt.Printf("cluster %d: %s (%d phrases, representative: %s)\n",
			c.ID, c.Label, c.Size, c.Representative)
	}
	if len(result.Discarded) > 0 {
		fmt.Printf("discarded %d phrases\n", len(result.Discarded))
		for _, d := range result.Discarded {
			fmt.Printf("  - %s (%s)\n", d.Phrase, d.Reason)
		}
	}
}
