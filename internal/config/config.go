package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the triage engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Training TrainingConfig `yaml:"training"`
	Features FeaturesConfig `yaml:"features"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bus      BusConfig      `yaml:"bus"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StorageConfig locates case folders and the shared model artifacts.
// Relative artifact file names resolve against ModelDir; case file names
// resolve inside each case folder.
type StorageConfig struct {
	CasesDir       string        `yaml:"casesDir"`
	ModelDir       string        `yaml:"modelDir"`
	SchemaFile     string        `yaml:"schemaFile"`
	ModelFile      string        `yaml:"modelFile"`
	CorpusFile     string        `yaml:"corpusFile"`
	CaseLogFile    string        `yaml:"caseLogFile"`
	MasterListFile string        `yaml:"masterListFile"`
	FlaggedFile    string        `yaml:"flaggedFile"`
	RankedFile     string        `yaml:"rankedFile"`
	CaseModelFile  string        `yaml:"caseModelFile"`
	LockTimeout    time.Duration `yaml:"lockTimeout"`
}

// TrainingConfig controls the random forest and data splits.
type TrainingConfig struct {
	Trees                 int     `yaml:"trees"`
	Seed                  int64   `yaml:"seed"`
	CaseTestFraction      float64 `yaml:"caseTestFraction"`
	GlobalTestFraction    float64 `yaml:"globalTestFraction"`
	ExcludeModelPredicted bool    `yaml:"excludeModelPredicted"`
}

// FeaturesConfig tunes feature derivation.
type FeaturesConfig struct {
	// OddHourStart and OddHourEnd bound the odd-hour window: hour >= start or hour < end.
	OddHourStart int      `yaml:"oddHourStart"`
	OddHourEnd   int      `yaml:"oddHourEnd"`
	CommonTLDs   []string `yaml:"commonTLDs"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// BusConfig controls event publication to NATS.
type BusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// CacheConfig sizes the in-memory model bundle cache.
type CacheConfig struct {
	Models int `yaml:"models"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TRIAGE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Storage.ModelDir == "" {
		problems = append(problems, "storage.modelDir is required")
	}
	if c.Training.Trees < 1 {
		problems = append(problems, "training.trees must be positive")
	}
	if c.Training.CaseTestFraction <= 0 || c.Training.CaseTestFraction >= 1 {
		problems = append(problems, "training.caseTestFraction must be between 0 and 1")
	}
	if c.Training.GlobalTestFraction <= 0 || c.Training.GlobalTestFraction >= 1 {
		problems = append(problems, "training.globalTestFraction must be between 0 and 1")
	}
	if c.Features.OddHourStart < 0 || c.Features.OddHourStart > 24 || c.Features.OddHourEnd < 0 || c.Features.OddHourEnd > 24 {
		problems = append(problems, "features odd-hour bounds must be within 0-24")
	}
	if c.Bus.Enabled && c.Bus.URL == "" {
		problems = append(problems, "bus.url is required when the bus is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SchemaPath returns the feature list location.
func (s StorageConfig) SchemaPath() string { return s.artifact(s.SchemaFile) }

// ModelPath returns the deployed model bundle location.
func (s StorageConfig) ModelPath() string { return s.artifact(s.ModelFile) }

// CorpusPath returns the training corpus location.
func (s StorageConfig) CorpusPath() string { return s.artifact(s.CorpusFile) }

// ArtifactLockPath returns the lock guarding schema and model replacement.
func (s StorageConfig) ArtifactLockPath() string { return s.artifact(".artifacts.lock") }

func (s StorageConfig) artifact(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.ModelDir, name)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			CasesDir:       "data/cases",
			ModelDir:       "data/models",
			SchemaFile:     "feature_list.json",
			ModelFile:      "suspicious_model.json.zst",
			CorpusFile:     "global_training_data.csv",
			CaseLogFile:    "resolved_dns_log.csv",
			MasterListFile: "master_list.csv",
			FlaggedFile:    "ml_flagged_suspicious.csv",
			RankedFile:     "ranked_suspicious_ips.csv",
			CaseModelFile:  "case_model.json.zst",
			LockTimeout:    30 * time.Second,
		},
		Training: TrainingConfig{
			Trees:              100,
			Seed:               42,
			CaseTestFraction:   0.3,
			GlobalTestFraction: 0.25,
		},
		Features: FeaturesConfig{OddHourStart: 22, OddHourEnd: 5},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Bus:      BusConfig{Enabled: false, SubjectPrefix: "triage"},
		Cache:    CacheConfig{Models: 8},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIAGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TRIAGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TRIAGE_CASES_DIR"); v != "" {
		cfg.Storage.CasesDir = v
	}
	if v := os.Getenv("TRIAGE_MODEL_DIR"); v != "" {
		cfg.Storage.ModelDir = v
	}
	if v := os.Getenv("TRIAGE_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Storage.LockTimeout = d
		}
	}
	if v := os.Getenv("TRIAGE_TREES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Training.Trees = n
		}
	}
	if v := os.Getenv("TRIAGE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Training.Seed = n
		}
	}
	if v := os.Getenv("TRIAGE_EXCLUDE_MODEL_PREDICTED"); v != "" {
		cfg.Training.ExcludeModelPredicted = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIAGE_ODD_HOUR_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Features.OddHourStart = n
		}
	}
	if v := os.Getenv("TRIAGE_ODD_HOUR_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Features.OddHourEnd = n
		}
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TRIAGE_BUS_ENABLED"); v != "" {
		cfg.Bus.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("TRIAGE_NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if v := os.Getenv("TRIAGE_BUS_SUBJECT_PREFIX"); v != "" {
		cfg.Bus.SubjectPrefix = v
	}
	if v := os.Getenv("TRIAGE_CACHE_MODELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Models = n
		}
	}
}
