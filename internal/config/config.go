// Package config loads gocondense site configuration.
//
// Precedence, highest first: runtime overrides, GOCONDENSE_* environment
// variables, the config file, built-in defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/gocondense/pkg/provider/command"
	"github.com/3leaps/gocondense/pkg/scheduler"
	"github.com/3leaps/gocondense/pkg/workflow"
)

// AppName names the config directory, env prefix and data directory.
const AppName = "gocondense"

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "GOCONDENSE"

// Config is the resolved site configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// DataDir holds the submission registry.
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// StoreConfig selects and configures the shared-storage backend.
type StoreConfig struct {
	// Backend is one of "command", "file" or "s3".
	Backend         string `mapstructure:"backend"`
	NamespacePrefix string `mapstructure:"namespace_prefix"`

	// CopyCommand and MkdirCommand drive the command backend.
	CopyCommand   string `mapstructure:"copy_command"`
	MkdirCommand  string `mapstructure:"mkdir_command"`
	KeepNamespace bool   `mapstructure:"keep_namespace"`

	// MountDir is where the file backend finds the shared store locally.
	MountDir string `mapstructure:"mount_dir"`

	// RateLimit caps copies per second; 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	S3 S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// SchedulerConfig names the scheduler commands and worker bootstrap.
type SchedulerConfig struct {
	SubmitCommand    string        `mapstructure:"submit_command"`
	SubmitDAGCommand string        `mapstructure:"submit_dag_command"`
	WorkerScript     string        `mapstructure:"worker_script"`
	Timeout          time.Duration `mapstructure:"timeout"`

	// Env lists extra KEY=VALUE pairs for scheduler and copy commands.
	Env []string `mapstructure:"env"`
}

// EnvSpec maps one environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("store.backend", "command")
	v.SetDefault("store.namespace_prefix", workflow.DefaultNamespacePrefix)
	v.SetDefault("store.copy_command", command.DefaultCopyCommand)
	v.SetDefault("store.mkdir_command", command.DefaultMkdirCommand)
	v.SetDefault("store.keep_namespace", false)
	v.SetDefault("store.mount_dir", "")
	v.SetDefault("store.rate_limit", 0.0)
	v.SetDefault("store.rate_burst", 1)
	for _, key := range []string{"bucket", "region", "endpoint", "profile", "access_key_id", "secret_access_key", "key_prefix"} {
		v.SetDefault("store.s3."+key, "")
	}
	v.SetDefault("store.s3.force_path_style", false)

	v.SetDefault("scheduler.submit_command", scheduler.DefaultSubmitCommand)
	v.SetDefault("scheduler.submit_dag_command", scheduler.DefaultSubmitDAGCommand)
	v.SetDefault("scheduler.worker_script", workflow.DefaultWorkerScript)
	v.SetDefault("scheduler.timeout", "0s")
	v.SetDefault("scheduler.env", []string{})

	v.SetDefault("data_dir", gfconfig.GetAppDataDir(AppName))
}

// getEnvSpecs lists the short environment names bound on top of the
// automatic GOCONDENSE_<SECTION>_<KEY> mapping.
func getEnvSpecs() []EnvSpec {
	return []EnvSpec{
		{Name: EnvPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: EnvPrefix + "_BACKEND", Path: "store.backend"},
		{Name: EnvPrefix + "_NAMESPACE_PREFIX", Path: "store.namespace_prefix"},
		{Name: EnvPrefix + "_COPY_COMMAND", Path: "store.copy_command"},
		{Name: EnvPrefix + "_MOUNT_DIR", Path: "store.mount_dir"},
		{Name: EnvPrefix + "_RATE_LIMIT", Path: "store.rate_limit"},
		{Name: EnvPrefix + "_S3_BUCKET", Path: "store.s3.bucket"},
		{Name: EnvPrefix + "_S3_ENDPOINT", Path: "store.s3.endpoint"},
		{Name: EnvPrefix + "_SUBMIT_COMMAND", Path: "scheduler.submit_command"},
		{Name: EnvPrefix + "_SUBMIT_DAG_COMMAND", Path: "scheduler.submit_dag_command"},
		{Name: EnvPrefix + "_WORKER_SCRIPT", Path: "scheduler.worker_script"},
		{Name: EnvPrefix + "_TIMEOUT", Path: "scheduler.timeout"},
		{Name: EnvPrefix + "_DATA_DIR", Path: "data_dir"},
	}
}

// autoEnvName is the variable AutomaticEnv would consult for key.
func autoEnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// getUserConfigPaths returns the directories searched for config.yaml.
func getUserConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName))
	}
	return append(paths, ".")
}

// Load resolves configuration from the default search paths.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile resolves configuration, reading path instead of searching when
// path is non-empty. A missing searched file is not an error; a missing
// explicit file is.
func LoadFile(_ context.Context, path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, autoEnvName(spec.Path), spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate rejects configurations no backend can run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "command":
		if strings.TrimSpace(c.Store.CopyCommand) == "" {
			return errors.New("config: store.copy_command is required for the command backend")
		}
	case "file":
	case "s3":
		if c.Store.S3.Bucket == "" {
			return errors.New("config: store.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q (want command, file or s3)", c.Store.Backend)
	}
	if c.Store.RateLimit < 0 {
		return fmt.Errorf("config: store.rate_limit must be >= 0, got %v", c.Store.RateLimit)
	}
	if strings.TrimSpace(c.Scheduler.SubmitCommand) == "" || strings.TrimSpace(c.Scheduler.SubmitDAGCommand) == "" {
		return errors.New("config: scheduler submit commands must not be empty")
	}
	return nil
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, val := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
