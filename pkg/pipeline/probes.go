package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"newspipe/pkg/config"
	"newspipe/pkg/probe"
	"newspipe/pkg/store"
)

var errMissingKey = errors.New("key not set")

// Probes returns the startup checks for a run of the named stages.
// Database and output checks are critical; missing credentials only warn,
// since the stages skip or fall back from providers without a key.
func Probes(cfg *config.Config, st store.RunStore, stages []string, opts Options) []probe.Probe {
	uses := func(name string) bool { return slices.Contains(stages, name) }
	source := func(name string) bool {
		for _, s := range opts.Sources {
			if strings.EqualFold(strings.TrimSpace(s), name) {
				return true
			}
		}
		return false
	}
	key := func(v, env string) probe.CheckFunc {
		return func(context.Context) error {
			if v == "" {
				return fmt.Errorf("%w: %s", errMissingKey, env)
			}
			return nil
		}
	}

	probes := []probe.Probe{
		{
			Name: "Database",
			Check: func(ctx context.Context) error {
				_, err := st.ListRuns(ctx, "", 1)
				return err
			},
			Critical: true,
		},
	}
	if uses(StageExport) && !opts.DryRun {
		probes = append(probes, probe.Probe{
			Name:     "Output directory",
			Check:    writableDir(filepath.Dir(outPathOf(cfg, opts))),
			Critical: true,
		})
	}
	if uses(StageIngest) && source("serpapi") {
		probes = append(probes, probe.Probe{Name: "SerpAPI key", Check: key(cfg.Keys.SerpAPI, "SERP_API_KEY")})
	}
	if uses(StageIngest) && source("perplexity") {
		probes = append(probes, probe.Probe{Name: "Perplexity key", Check: key(cfg.Keys.Perplexity, "PRP")})
	}
	if uses(StageGeocode) && cfg.Geocode.Provider != "nominatim" {
		probes = append(probes, probe.Probe{
			Name:     "Google Maps key",
			Check:    key(cfg.Keys.GoogleMaps, "GOOGLE_MAPS_API_KEY"),
			Critical: cfg.Geocode.Provider == "google",
		})
	}
	if uses(StageExtract) && opts.UseLLM {
		probes = append(probes, probe.Probe{Name: "LLM key", Check: llmKey(cfg)})
	}
	if opts.FetchText {
		probes = append(probes, probe.Probe{Name: "Firecrawl key", Check: key(cfg.Keys.Firecrawl, "FIRECRAWL_API_KEY")})
	}
	return probes
}

// llmKey passes when any provider the LLM chain may use has a key.
func llmKey(cfg *config.Config) probe.CheckFunc {
	return func(context.Context) error {
		k := cfg.Keys
		if k.OpenAI != "" || k.Gemini != "" || k.Perplexity != "" {
			return nil
		}
		return fmt.Errorf("%w: OPENAI_KEY, GEMINI_API_KEY or PRP", errMissingKey)
	}
}

func writableDir(dir string) probe.CheckFunc {
	return func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return err
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}

func outPathOf(cfg *config.Config, opts Options) string {
	if opts.OutPath != "" {
		return opts.OutPath
	}
	return cfg.Export.Path
}
