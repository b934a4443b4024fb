package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. MUFAT_GLOBAL_LOG_LEVEL=debug.
	EnvPrefix = "MUFAT"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDebugDir is where per-run console logs are written before upload.
	DefaultDebugDir = "/muveedebug"

	// DefaultSuiteFile is the default run configuration file.
	DefaultSuiteFile = "runconfig.yaml"

	// DefaultScriptExt is the file extension of run scripts.
	DefaultScriptExt = ".yaml"

	// DefaultChildTimeout is the hard ceiling for a single child process.
	DefaultChildTimeout = 3600 * time.Second

	// DefaultQueueTTL is the expiry refreshed on every queue access.
	DefaultQueueTTL = time.Hour

	// DefaultQueueKeyPrefix prefixes every result queue key.
	DefaultQueueKeyPrefix = "Q"

	// DefaultFailFast stops a script's remaining test cases after the first
	// failure.
	DefaultFailFast = true

	// DefaultRuntime is the native runtime driver used by child processes.
	DefaultRuntime = "sim"

	// DefaultReportDB is the logical report database (table) name.
	DefaultReportDB = "dailygrid_MacSDK"

	// DefaultReportTimeout bounds a single report submission.
	DefaultReportTimeout = 30 * time.Second

	// DefaultPublicURL is the public base URL of uploaded artifacts.
	DefaultPublicURL = "https://mufat.s3.amazonaws.com"
)

// DefaultIgnoredNames are directory or file stems skipped during suite scans.
var DefaultIgnoredNames = []string{"include", "ignore", "includes", "__init__"}

// Config is the root configuration for mufat.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	Runner RunnerConfig `yaml:"runner" mapstructure:"runner"`
	Queue  QueueConfig  `yaml:"queue" mapstructure:"queue"`
	Upload UploadConfig `yaml:"upload" mapstructure:"upload"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	API    *APIConfig   `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel     string `yaml:"log_level" mapstructure:"log_level"`
	Host         string `yaml:"host" mapstructure:"host"`
	DebugDir     string `yaml:"debug_dir" mapstructure:"debug_dir"`
	CacheDir     string `yaml:"cache_dir" mapstructure:"cache_dir"`
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// RunnerConfig contains settings for the parent orchestrator and the
// child runner.
type RunnerConfig struct {
	SuiteFile    string        `yaml:"suite_file" mapstructure:"suite_file"`
	ScriptRoot   string        `yaml:"script_root" mapstructure:"script_root"`
	ScriptExt    string        `yaml:"script_ext" mapstructure:"script_ext"`
	IgnoredNames []string      `yaml:"ignored_names" mapstructure:"ignored_names"`
	ChildTimeout time.Duration `yaml:"child_timeout" mapstructure:"child_timeout"`
	QueueWait    time.Duration `yaml:"queue_wait" mapstructure:"queue_wait"`
	EchoOutput   bool          `yaml:"echo_output" mapstructure:"echo_output"`
	Runtime      string        `yaml:"runtime" mapstructure:"runtime"`
	FailFast     bool          `yaml:"fail_fast" mapstructure:"fail_fast"`
	UserDataDir  string        `yaml:"user_data_dir" mapstructure:"user_data_dir"`
	Media        MediaConfig   `yaml:"media" mapstructure:"media"`
	PathMappings []PathMapping `yaml:"path_mappings,omitempty" mapstructure:"path_mappings"`
}

// PathMapping rewrites a path prefix used in scripts to a local prefix.
type PathMapping struct {
	From string `yaml:"from" mapstructure:"from"`
	To   string `yaml:"to" mapstructure:"to"`
}

// MediaConfig describes the local media cache and the remote store it is
// filled from.
type MediaConfig struct {
	LocalRoot  string `yaml:"local_root" mapstructure:"local_root"`
	RemoteRoot string `yaml:"remote_root" mapstructure:"remote_root"`
}

// QueueConfig contains the result queue backing store settings.
type QueueConfig struct {
	URL       string        `yaml:"url" mapstructure:"url"`
	Cluster   bool          `yaml:"cluster" mapstructure:"cluster"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// UploadConfig contains artifact upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings for run logs and
// summaries.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	PublicURL       string `yaml:"public_url,omitempty" mapstructure:"public_url"`
}

// ReportConfig contains the central report endpoint settings.
type ReportConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	ServerURL string        `yaml:"server_url" mapstructure:"server_url"`
	DB        string        `yaml:"db" mapstructure:"db"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Load reads the given configuration files, merging later files over
// earlier ones, and applies MUFAT_* environment overrides.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A true default must be known before decoding, where false is the zero
	// value.
	v.SetDefault("runner.fail_fast", DefaultFailFast)

	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(f)
		} else {
			err = v.MergeConfig(f)
		}

		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about, so bind
	// every struct key explicitly.
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// bindEnvs walks the mapstructure tags of t and binds each leaf key.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Duration(0)) {
			bindEnvs(v, ft, key)

			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.Host == "" {
		c.Global.Host = shortHostname()
	}

	if c.Global.DebugDir == "" {
		c.Global.DebugDir = DefaultDebugDir
	}

	if c.Runner.SuiteFile == "" {
		c.Runner.SuiteFile = DefaultSuiteFile
	}

	if c.Runner.ScriptExt == "" {
		c.Runner.ScriptExt = DefaultScriptExt
	}

	if c.Runner.IgnoredNames == nil {
		c.Runner.IgnoredNames = append([]string(nil), DefaultIgnoredNames...)
	}

	if c.Runner.ChildTimeout == 0 {
		c.Runner.ChildTimeout = DefaultChildTimeout
	}

	if c.Runner.Runtime == "" {
		c.Runner.Runtime = DefaultRuntime
	}

	if c.Queue.TTL == 0 {
		c.Queue.TTL = DefaultQueueTTL
	}

	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = DefaultQueueKeyPrefix
	}

	if c.Upload.S3 != nil && c.Upload.S3.PublicURL == "" {
		c.Upload.S3.PublicURL = DefaultPublicURL
	}

	if c.Report.DB == "" {
		c.Report.DB = DefaultReportDB
	}

	if c.Report.Timeout == 0 {
		c.Report.Timeout = DefaultReportTimeout
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the runner configuration for errors.
func (c *Config) Validate() error {
	if c.Queue.URL == "" {
		return fmt.Errorf("queue.url is required")
	}

	if !strings.HasPrefix(c.Runner.ScriptExt, ".") {
		return fmt.Errorf("runner.script_ext %q must start with a dot", c.Runner.ScriptExt)
	}

	if c.Runner.ChildTimeout < 0 {
		return fmt.Errorf("runner.child_timeout must not be negative")
	}

	if c.Runner.QueueWait < 0 {
		return fmt.Errorf("runner.queue_wait must not be negative")
	}

	if c.Upload.S3 != nil && c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when s3 upload is enabled")
	}

	if c.Report.Enabled && c.Report.ServerURL == "" {
		return fmt.Errorf("report.server_url is required when reporting is enabled")
	}

	return nil
}

// shortHostname returns the first label of the machine hostname.
func shortHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}

	return strings.SplitN(name, ".", 2)[0]
}
