package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DB       DBConfig       `yaml:"db"`
	Log      LogConfig      `yaml:"log"`
	Request  RequestConfig  `yaml:"request"`
	Keys     KeysConfig     `yaml:"keys"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Classify ClassifyConfig `yaml:"classify"`
	Extract  ExtractConfig  `yaml:"extract"`
	LLM      LLMConfig      `yaml:"llm"`
	Resolve  ResolveConfig  `yaml:"resolve"`
	Geocode  GeocodeConfig  `yaml:"geocode"`
	Export   ExportConfig   `yaml:"export"`
	Publish  PublishConfig  `yaml:"publish"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Pipeline LogSettings `yaml:"pipeline"`
	Requests LogSettings `yaml:"requests"`
	Runs     LogSettings `yaml:"runs"` // one line per stage run
	LLM      LogSettings `yaml:"llm"`  // prompt/response transcript
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	MinGap  Duration      `yaml:"min_gap"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// KeysConfig holds provider credentials. Empty values fall back to the environment.
type KeysConfig struct {
	SerpAPI    string `yaml:"serp_api"`
	Perplexity string `yaml:"perplexity"`
	GoogleMaps string `yaml:"google_maps"`
	OpenAI     string `yaml:"openai"`
	Gemini     string `yaml:"gemini"`
	Firecrawl  string `yaml:"firecrawl"`
}

// IngestConfig holds search settings.
type IngestConfig struct {
	Sources         []string `yaml:"sources"` // "serpapi", "perplexity", "rss"
	Queries         []string `yaml:"queries"`
	MaxResults      int      `yaml:"max_results"`
	FetchText       bool     `yaml:"fetch_text"`
	RSSBaseURL      string   `yaml:"rss_base_url"`
	SerpAPIURL      string   `yaml:"serpapi_url"`
	PerplexityModel string   `yaml:"perplexity_model"`
	Recency         string   `yaml:"recency"` // perplexity citation age: day, week, month, year
}

// DedupConfig holds deduplication thresholds.
type DedupConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// ClassifyConfig holds classification settings.
type ClassifyConfig struct {
	RulesFile string `yaml:"rules_file"` // optional YAML keyword overrides
}

// ExtractConfig holds extraction settings.
type ExtractConfig struct {
	UseLLM       bool    `yaml:"use_llm"`
	LLMThreshold float64 `yaml:"llm_threshold"` // regex score below which the LLM is asked
}

// LLMConfig holds settings for the optional extraction assistant.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "gemini", "perplexity", a comma list, or "auto"
	Model     string `yaml:"model"`
	PromptDir string `yaml:"prompt_dir"` // optional *.tmpl overrides
}

// ResolveConfig holds entity resolution settings.
type ResolveConfig struct {
	Proximity    bool `yaml:"proximity"`
	H3Resolution int  `yaml:"h3_resolution"`
}

// GeocodeConfig holds geocoder settings.
type GeocodeConfig struct {
	Provider      string   `yaml:"provider"` // "auto", "google", "nominatim"
	NominatimURL  string   `yaml:"nominatim_url"`
	GoogleURL     string   `yaml:"google_url"`
	UserAgent     string   `yaml:"user_agent"`
	MinInterval   Duration `yaml:"min_interval"`
	CacheTTL      Duration `yaml:"cache_ttl"`
	Region        Region   `yaml:"region"`
	RegionPolygon string   `yaml:"region_polygon"` // optional GeoJSON boundary file
	DefaultState  string   `yaml:"default_state"`
}

// Region is an inclusive lat/lng bounding box.
type Region struct {
	Name   string  `yaml:"name"`
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLng float64 `yaml:"min_lng"`
	MaxLng float64 `yaml:"max_lng"`
}

// ExportConfig holds GeoJSON output settings.
type ExportConfig struct {
	Path         string  `yaml:"path"`
	JitterMeters float64 `yaml:"jitter_meters"`
	H3Resolution int     `yaml:"h3_resolution"`
	Indent       bool    `yaml:"indent"`
}

// PublishConfig holds S3 upload settings.
type PublishConfig struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	Region string `yaml:"region"`
}

// PipelineConfig holds runner settings.
type PipelineConfig struct {
	StageTimeout Duration `yaml:"stage_timeout"`
	Limit        int      `yaml:"limit"`
	RunRetention Duration `yaml:"run_retention"` // pipeline_runs rows older than this are pruned
}

// MetricsConfig holds the prometheus textfile settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			Path: "./news_pipeline.db",
		},
		Log: LogConfig{
			Pipeline: LogSettings{
				Path:  "./logs/newspipe.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Runs: LogSettings{
				Path: "./logs/runs.log",
			},
			LLM: LogSettings{
				Path: "./logs/llm.log",
			},
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			MinGap:  Duration(100 * time.Millisecond),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Ingest: IngestConfig{
			Sources: []string{"serpapi", "rss"},
			Queries: []string{
				"Texas data center announced",
				"Texas data center campus MW",
				"hyperscale data center Texas groundbreaking",
				"Oklahoma data center announced",
				"data center rezoning approved Texas",
			},
			MaxResults:      50,
			RSSBaseURL:      "https://news.google.com/rss/search",
			SerpAPIURL:      "https://serpapi.com/search.json",
			PerplexityModel: "sonar",
			Recency:         "month",
		},
		Dedup: DedupConfig{
			FuzzyThreshold: 0.85,
		},
		Extract: ExtractConfig{
			UseLLM:       false,
			LLMThreshold: 0.5,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Resolve: ResolveConfig{
			H3Resolution: 6,
		},
		Geocode: GeocodeConfig{
			Provider:     "auto",
			NominatimURL: "https://nominatim.openstreetmap.org/search",
			GoogleURL:    "https://maps.googleapis.com/maps/api/geocode/json",
			UserAgent:    "newspipe/1.0 (datacenter map)",
			MinInterval:  Duration(1 * time.Second),
			CacheTTL:     Duration(90 * Day),
			Region: Region{
				Name:   "Texas",
				MinLat: 25.0,
				MaxLat: 37.0,
				MinLng: -107.0,
				MaxLng: -93.0,
			},
			DefaultState: "TX",
		},
		Export: ExportConfig{
			Path:         "./public/data/datacenter_projects.geojson",
			JitterMeters: 0,
			H3Resolution: 6,
			Indent:       true,
		},
		Publish: PublishConfig{
			Key:    "data/datacenter_projects.geojson",
			Region: "us-east-1",
		},
		Pipeline: PipelineConfig{
			StageTimeout: Duration(55 * time.Second),
			RunRetention: Duration(26 * Week),
		},
	}
}

// LoadEnv reads KEY=VALUE files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Credentials left empty in the file are filled from the environment but never written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&c.Keys.SerpAPI, "SERP_API_KEY")
	fill(&c.Keys.Perplexity, "PRP")
	fill(&c.Keys.GoogleMaps, "GOOGLE_MAPS_API_KEY")
	fill(&c.Keys.OpenAI, "OPENAI_KEY")
	fill(&c.Keys.Gemini, "GEMINI_API_KEY")
	fill(&c.Keys.Firecrawl, "FIRECRAWL_API_KEY")
	fill(&c.Publish.Bucket, "NEWSPIPE_BUCKET")
}

var stateCode = regexp.MustCompile(`^[A-Z]{2}$`)

// Validate checks settings that would make stages misbehave.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	r := c.Geocode.Region
	if r.MinLat >= r.MaxLat || r.MinLng >= r.MaxLng {
		return fmt.Errorf("invalid geocode region %+v: min must be below max", r)
	}
	if c.Dedup.FuzzyThreshold <= 0 || c.Dedup.FuzzyThreshold > 1 {
		return fmt.Errorf("dedup.fuzzy_threshold must be in (0,1], got %v", c.Dedup.FuzzyThreshold)
	}
	if c.Geocode.DefaultState != "" && !stateCode.MatchString(c.Geocode.DefaultState) {
		return fmt.Errorf("invalid default_state '%s': must be a two-letter code (e.g. 'TX')", c.Geocode.DefaultState)
	}
	if c.Resolve.H3Resolution < 0 || c.Resolve.H3Resolution > 15 || c.Export.H3Resolution < 0 || c.Export.H3Resolution > 15 {
		return fmt.Errorf("h3 resolution must be in [0,15]")
	}
	return nil
}

// Save writes the configuration to the path. Credentials are not persisted.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Keys = KeysConfig{}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# newspipe configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# Credentials are read from the environment (.env) when left empty:
#   SERP_API_KEY, PRP, GOOGLE_MAPS_API_KEY, OPENAI_KEY, GEMINI_API_KEY, FIRECRAWL_API_KEY

`)
	data = append(header, data...)

	reSources := regexp.MustCompile(`(?m)^(\s+)sources:`)
	data = reSources.ReplaceAll(data, []byte("${1}# Options: serpapi, perplexity, rss\n${1}sources:"))

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider: auto`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: auto, google, nominatim\n${1}provider: auto"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
