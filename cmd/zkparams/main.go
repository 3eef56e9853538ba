package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/registry"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting zkparams", "version", Version)

	if err := run(cfg, os.Stdout); err != nil {
		log.Fatalf("Failed to load parameters: %v", err)
	}
}

// run loads the parameters of every circuit into the process-wide registry
// and prints a summary of the published keys to w.
func run(cfg *Config, w io.Writer) error {
	storeCfg, err := cfg.storeConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.Params.CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := registry.Configure(storeCfg); err != nil {
		return err
	}

	start := time.Now()
	if _, err := registry.Initialize(cfg.Params.Mint, cfg.Params.Spend, cfg.Params.Output); err != nil {
		return err
	}
	log.Infow("parameters ready", "elapsed", time.Since(start).String())
	return printSummary(w, registry.Global())
}

func printSummary(w io.Writer, b *registry.Bundle) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CIRCUIT\tCURVE\tSIZE\tPUBLIC INPUTS\tSHA256\tLOCATION")
	locations := b.Locations()
	for _, kind := range circuits.Kinds {
		pp, vk := b.Params(kind), b.VerifyingKey(kind)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			kind, pp.Curve, pp.Size, vk.NbPublicWitness(), pp.Digest.Hex(), locations.For(kind))
	}
	return tw.Flush()
}
