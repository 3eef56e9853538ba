package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/config"
	"github.com/vocdoni/zkparams/params"
	"github.com/vocdoni/zkparams/types"
)

const (
	defaultLogLevel     = "info"
	defaultLogOutput    = "stdout"
	defaultDatadir      = ".zkparams" // Will be prefixed with user's home directory
	defaultFetchTimeout = 20 * time.Minute
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	Params  ParamsConfig
	S3      S3Config
	Log     LogConfig
	Datadir string
}

// ParamsConfig holds where the parameters of each circuit are read from
type ParamsConfig struct {
	Spend      string        `mapstructure:"spend"`
	Output     string        `mapstructure:"output"`
	Mint       string        `mapstructure:"mint"`
	Remote     bool          `mapstructure:"remote"`
	BaseURL    string        `mapstructure:"baseurl"`
	Release    string        `mapstructure:"release"`
	CacheDir   string        `mapstructure:"cachedir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Digests    []string      `mapstructure:"digests"`
	SkipChecks bool          `mapstructure:"skipchecks"`
}

// S3Config holds the settings for s3:// locations
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
	PathStyle bool   `mapstructure:"pathstyle"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()
	fs := flag.NewFlagSet("zkparams", flag.ContinueOnError)

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)
	defaultS3 := params.NewDefaultS3Config()

	v.SetDefault("params.baseurl", config.DefaultParamsBaseURL)
	v.SetDefault("params.release", config.DefaultParamsRelease)
	v.SetDefault("params.timeout", defaultFetchTimeout)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	fs.String("params.spend", "", "spend parameters location (path, file://, http(s):// or s3://)")
	fs.String("params.output", "", "output parameters location")
	fs.String("params.mint", "", "mint parameters location")
	fs.BoolP("params.remote", "r", false, "read unset locations from params.baseurl instead of the data directory")
	fs.String("params.baseurl", config.DefaultParamsBaseURL, "base URL of the published parameters")
	fs.String("params.release", config.DefaultParamsRelease, "release folder of the published parameters")
	fs.String("params.cachedir", "", "cache directory for remote parameters (default <datadir>/params/cache)")
	fs.DurationP("params.timeout", "t", defaultFetchTimeout, "timeout of each remote download")
	fs.StringSlice("params.digests", []string{}, "expected sha256 of the parameters files, as circuit=hex, comma-separated")
	fs.Bool("params.skipchecks", false, "skip point subgroup checks for files matching their pinned digest")
	fs.String("s3.endpoint", defaultS3.Endpoint, "S3 endpoint for s3:// locations")
	fs.String("s3.region", defaultS3.Region, "S3 region")
	fs.String("s3.accesskey", "", "S3 access key (default credential chain if empty)")
	fs.String("s3.secretkey", "", "S3 secret key")
	fs.Bool("s3.pathstyle", defaultS3.UsePathStyle, "use path style S3 addressing")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory for parameter files")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "zkparams v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Loads and checks the shielded circuit parameters.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: zkparams [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, ZKPARAMS_PARAMS_SPEND or ZKPARAMS_S3_ACCESSKEY\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Check the parameters in the data directory\n")
		fmt.Fprintf(os.Stderr, "  zkparams\n\n")
		fmt.Fprintf(os.Stderr, "  # Download the published parameters\n")
		fmt.Fprintf(os.Stderr, "  zkparams --params.remote\n\n")
		fmt.Fprintf(os.Stderr, "  # Read the spend parameters from a bucket\n")
		fmt.Fprintf(os.Stderr, "  zkparams --params.spend=s3://circuits/sapling/sapling-spend.params\n")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("ZKPARAMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills the locations and the cache directory left unset.
func (cfg *Config) applyDefaults() {
	paramsDir := filepath.Join(cfg.Datadir, config.DefaultParamsDir)
	for _, kind := range circuits.Kinds {
		loc := cfg.Params.location(kind)
		if *loc != "" {
			continue
		}
		if cfg.Params.Remote {
			*loc = config.ParamsURL(cfg.Params.BaseURL, cfg.Params.Release, kind)
		} else {
			*loc = filepath.Join(paramsDir, config.ParamsFileName(kind))
		}
	}
	if cfg.Params.CacheDir == "" {
		cfg.Params.CacheDir = filepath.Join(paramsDir, "cache")
	}
}

func (p *ParamsConfig) location(kind circuits.Kind) *string {
	switch kind {
	case circuits.Spend:
		return &p.Spend
	case circuits.Output:
		return &p.Output
	default:
		return &p.Mint
	}
}

// storeConfig builds the parameters store settings.
func (cfg *Config) storeConfig() (params.Config, error) {
	digests, err := parseDigests(cfg.Params.Digests)
	if err != nil {
		return params.Config{}, err
	}
	return params.Config{
		CacheDir:     cfg.Params.CacheDir,
		FetchTimeout: cfg.Params.Timeout,
		S3: &params.S3Config{
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.PathStyle,
		},
		Digests:            digests,
		SkipSubgroupChecks: cfg.Params.SkipChecks,
	}, nil
}

// parseDigests parses circuit=hex pairs.
func parseDigests(pairs []string) (map[circuits.Kind]types.HexBytes, error) {
	digests := make(map[circuits.Kind]types.HexBytes, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid digest %q, expected circuit=hex", pair)
		}
		kind, err := circuits.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		digest, err := types.HexStringToHexBytes(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid %s digest: %w", kind, err)
		}
		if len(digest) != 32 {
			return nil, fmt.Errorf("invalid %s digest: %d bytes, expected 32", kind, len(digest))
		}
		digests[kind] = digest
	}
	return digests, nil
}
