package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/enrichnet/internal/pipeline"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

const DefaultServeAddr = "127.0.0.1:8001"

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI overrides. Empty strings mean "flag not set".
type ResolveOptions struct {
	ConfigPath string

	CLIDBPath          string
	CLILogFile         string
	CLILogLevel        string
	CLIMethod          string
	CLIThreshold       string
	CLIAlgorithm       string
	CLISeed            string
	CLIMinWeight       string
	CLIMinSize         string
	CLITextField       string
	CLITopN            string
	CLIWorkers         string
	CLIStripNamePrefix string
	CLIAddr            string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath   ResolvedValue `json:"db_path"`
	LogFile  ResolvedValue `json:"log_file"`
	LogLevel ResolvedValue `json:"log_level"`

	Method          ResolvedValue `json:"method"`
	Threshold       ResolvedValue `json:"threshold"`
	Algorithm       ResolvedValue `json:"algorithm"`
	Seed            ResolvedValue `json:"seed"`
	MinWeight       ResolvedValue `json:"min_weight"`
	MinSize         ResolvedValue `json:"min_size"`
	TextField       ResolvedValue `json:"text_field"`
	TopN            ResolvedValue `json:"top_n"`
	Workers         ResolvedValue `json:"workers"`
	StripNamePrefix ResolvedValue `json:"strip_name_prefix"`

	ServeAddr ResolvedValue `json:"serve_addr"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Log    struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	Analysis struct {
		Method          string   `yaml:"method"`
		Threshold       *float64 `yaml:"threshold"`
		Algorithm       string   `yaml:"algorithm"`
		Seed            *int64   `yaml:"seed"`
		MinWeight       *float64 `yaml:"min_weight"`
		MinSize         *int     `yaml:"min_size"`
		TextField       string   `yaml:"text_field"`
		TopN            *int     `yaml:"top_n"`
		Workers         *int     `yaml:"workers"`
		StripNamePrefix *bool    `yaml:"strip_name_prefix"`
	} `yaml:"analysis"`
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".enrichnet", "config.yaml")
}

func DefaultDBPath() string {
	return filepath.Join(homeDir(), ".enrichnet", "enrichnet.db")
}

func DefaultLogPath() string {
	return filepath.Join(homeDir(), ".enrichnet", "enrichnet.log")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}
	applyDefaults(&out)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		a := cfg.Analysis
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LogFile, cfg.Log.File, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.Method, a.Method, SourceConfig, path)
		apply(&out.Threshold, formatFloat(a.Threshold), SourceConfig, path)
		apply(&out.Algorithm, a.Algorithm, SourceConfig, path)
		apply(&out.Seed, formatInt64(a.Seed), SourceConfig, path)
		apply(&out.MinWeight, formatFloat(a.MinWeight), SourceConfig, path)
		apply(&out.MinSize, formatInt(a.MinSize), SourceConfig, path)
		apply(&out.TextField, a.TextField, SourceConfig, path)
		apply(&out.TopN, formatInt(a.TopN), SourceConfig, path)
		apply(&out.Workers, formatInt(a.Workers), SourceConfig, path)
		apply(&out.StripNamePrefix, formatBool(a.StripNamePrefix), SourceConfig, path)
		apply(&out.ServeAddr, cfg.Serve.Addr, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "ENRICHNET_DB")
	applyEnv(&out.DBPath, "ENRICHNET_DB_PATH")
	applyEnv(&out.LogFile, "ENRICHNET_LOG_FILE")
	applyEnv(&out.LogLevel, "ENRICHNET_LOG_LEVEL")
	applyEnv(&out.Method, "ENRICHNET_METHOD")
	applyEnv(&out.Threshold, "ENRICHNET_THRESHOLD")
	applyEnv(&out.Algorithm, "ENRICHNET_ALGORITHM")
	applyEnv(&out.Seed, "ENRICHNET_SEED")
	applyEnv(&out.MinWeight, "ENRICHNET_MIN_WEIGHT")
	applyEnv(&out.MinSize, "ENRICHNET_MIN_SIZE")
	applyEnv(&out.TextField, "ENRICHNET_TEXT_FIELD")
	applyEnv(&out.TopN, "ENRICHNET_TOP_N")
	applyEnv(&out.Workers, "ENRICHNET_WORKERS")
	applyEnv(&out.StripNamePrefix, "ENRICHNET_STRIP_NAME_PREFIX")
	applyEnv(&out.ServeAddr, "ENRICHNET_ADDR")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.LogFile, opts.CLILogFile, SourceCLI, "--log-file")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.Method, opts.CLIMethod, SourceCLI, "--method")
	apply(&out.Threshold, opts.CLIThreshold, SourceCLI, "--threshold")
	apply(&out.Algorithm, opts.CLIAlgorithm, SourceCLI, "--algorithm")
	apply(&out.Seed, opts.CLISeed, SourceCLI, "--seed")
	apply(&out.MinWeight, opts.CLIMinWeight, SourceCLI, "--min-weight")
	apply(&out.MinSize, opts.CLIMinSize, SourceCLI, "--min-size")
	apply(&out.TextField, opts.CLITextField, SourceCLI, "--field")
	apply(&out.TopN, opts.CLITopN, SourceCLI, "--top")
	apply(&out.Workers, opts.CLIWorkers, SourceCLI, "--workers")
	apply(&out.StripNamePrefix, opts.CLIStripNamePrefix, SourceCLI, "--strip-prefix")
	apply(&out.ServeAddr, opts.CLIAddr, SourceCLI, "--addr")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.LogFile.Value = expandUserPath(out.LogFile.Value)

	return out, nil
}

func applyDefaults(out *ResolvedConfig) {
	d := pipeline.DefaultOptions()
	def := func(dst *ResolvedValue, v string) {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
	def(&out.DBPath, DefaultDBPath())
	def(&out.LogFile, DefaultLogPath())
	def(&out.LogLevel, "info")
	def(&out.Method, string(d.Method))
	def(&out.Threshold, strconv.FormatFloat(d.Threshold, 'g', -1, 64))
	def(&out.Algorithm, d.Algorithm)
	def(&out.Seed, strconv.FormatInt(d.Seed, 10))
	def(&out.MinWeight, strconv.FormatFloat(d.MinWeight, 'g', -1, 64))
	def(&out.MinSize, strconv.Itoa(d.MinSize))
	def(&out.TextField, string(d.TextField))
	def(&out.TopN, strconv.Itoa(d.TopN))
	def(&out.Workers, strconv.Itoa(d.Workers))
	def(&out.StripNamePrefix, strconv.FormatBool(d.StripNamePrefix))
	def(&out.ServeAddr, DefaultServeAddr)
}

// PipelineOptions converts the resolved analysis keys into validated
// pipeline options. Errors name the offending key and where it came from.
func (r ResolvedConfig) PipelineOptions() (pipeline.Options, error) {
	var opts pipeline.Options
	var err error

	method, err := similarity.ParseMethod(r.Method.Value)
	if err != nil {
		return opts, valueError("method", r.Method, err)
	}
	opts.Method = method
	if opts.Threshold, err = strconv.ParseFloat(r.Threshold.Value, 64); err != nil {
		return opts, valueError("threshold", r.Threshold, err)
	}
	opts.Algorithm = strings.ToLower(strings.TrimSpace(r.Algorithm.Value))
	if opts.Seed, err = strconv.ParseInt(r.Seed.Value, 10, 64); err != nil {
		return opts, valueError("seed", r.Seed, err)
	}
	if opts.MinWeight, err = strconv.ParseFloat(r.MinWeight.Value, 64); err != nil {
		return opts, valueError("min_weight", r.MinWeight, err)
	}
	if opts.MinSize, err = strconv.Atoi(r.MinSize.Value); err != nil {
		return opts, valueError("min_size", r.MinSize, err)
	}
	field, err := textmine.ParseField(r.TextField.Value)
	if err != nil {
		return opts, valueError("text_field", r.TextField, err)
	}
	opts.TextField = field
	if opts.TopN, err = strconv.Atoi(r.TopN.Value); err != nil {
		return opts, valueError("top_n", r.TopN, err)
	}
	if opts.Workers, err = strconv.Atoi(r.Workers.Value); err != nil {
		return opts, valueError("workers", r.Workers, err)
	}
	if opts.StripNamePrefix, err = strconv.ParseBool(r.StripNamePrefix.Value); err != nil {
		return opts, valueError("strip_name_prefix", r.StripNamePrefix, err)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func valueError(key string, v ResolvedValue, err error) error {
	return fmt.Errorf("%s %q (from %s %s): %w", key, v.Value, v.Source, v.From, err)
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
