package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvVarOverrides(t *testing.T) {
	// Create a minimal config file for testing.
	configContent := `
global:
  log_level: info
  host: buildbox
  debug_dir: /tmp/original-debug
runner:
  script_root: /scripts/original
  child_timeout: 30m
  echo_output: false
queue:
  url: redis://localhost:6379/0
report:
  enabled: false
  server_url: http://reports.example.com
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, "buildbox", cfg.Global.Host)
				assert.Equal(t, "/scripts/original", cfg.Runner.ScriptRoot)
				assert.Equal(t, 30*time.Minute, cfg.Runner.ChildTimeout)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"MUFAT_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "string override - host",
			envVars: map[string]string{
				"MUFAT_GLOBAL_HOST": "mac-mini-7",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mac-mini-7", cfg.Global.Host)
			},
		},
		{
			name: "boolean override - echo_output true",
			envVars: map[string]string{
				"MUFAT_RUNNER_ECHO_OUTPUT": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Runner.EchoOutput)
			},
		},
		{
			name: "duration override - child_timeout",
			envVars: map[string]string{
				"MUFAT_RUNNER_CHILD_TIMEOUT": "90s",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Second, cfg.Runner.ChildTimeout)
			},
		},
		{
			name: "nested field override - media.local_root",
			envVars: map[string]string{
				"MUFAT_RUNNER_MEDIA_LOCAL_ROOT": "/media/local",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/media/local", cfg.Runner.Media.LocalRoot)
			},
		},
		{
			name: "queue override - url",
			envVars: map[string]string{
				"MUFAT_QUEUE_URL": "redis://queue:6379/2",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis://queue:6379/2", cfg.Queue.URL)
			},
		},
		{
			name: "pointer section created from env - upload.s3.bucket",
			envVars: map[string]string{
				"MUFAT_UPLOAD_S3_BUCKET": "fat-logs",
			},
			validate: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Upload.S3)
				assert.Equal(t, "fat-logs", cfg.Upload.S3.Bucket)
				assert.Equal(t, DefaultPublicURL, cfg.Upload.S3.PublicURL)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"MUFAT_GLOBAL_LOG_LEVEL":   "trace",
				"MUFAT_REPORT_ENABLED":     "true",
				"MUFAT_REPORT_DB":          "dailygrid_WinSDK",
				"MUFAT_RUNNER_SCRIPT_ROOT": "/scripts/multi",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "trace", cfg.Global.LogLevel)
				assert.True(t, cfg.Report.Enabled)
				assert.Equal(t, "dailygrid_WinSDK", cfg.Report.DB)
				assert.Equal(t, "/scripts/multi", cfg.Runner.ScriptRoot)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configContent := `
queue:
  url: redis://localhost:6379/0
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultDebugDir, cfg.Global.DebugDir)
	assert.NotEmpty(t, cfg.Global.Host)
	assert.Equal(t, DefaultSuiteFile, cfg.Runner.SuiteFile)
	assert.Equal(t, DefaultScriptExt, cfg.Runner.ScriptExt)
	assert.Equal(t, DefaultIgnoredNames, cfg.Runner.IgnoredNames)
	assert.Equal(t, DefaultChildTimeout, cfg.Runner.ChildTimeout)
	assert.True(t, cfg.Runner.FailFast)
	assert.Equal(t, DefaultQueueTTL, cfg.Queue.TTL)
	assert.Equal(t, DefaultReportDB, cfg.Report.DB)
	assert.Nil(t, cfg.API)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FailFastCanBeDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
runner:
  fail_fast: false
`), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.False(t, cfg.Runner.FailFast)

	t.Setenv("MUFAT_RUNNER_FAIL_FAST", "true")

	cfg, err = Load(configPath)
	require.NoError(t, err)
	assert.True(t, cfg.Runner.FailFast)
}

func TestLoad_MergesLaterFiles(t *testing.T) {
	tmpDir := t.TempDir()

	base := filepath.Join(tmpDir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
global:
  log_level: info
  host: base-host
queue:
  url: redis://localhost:6379/0
`), 0o644))

	override := filepath.Join(tmpDir, "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte(`
global:
  host: override-host
`), 0o644))

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "override-host", cfg.Global.Host)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Queue.URL)
}

func TestLoad_PathMappingsKeepCase(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
runner:
  path_mappings:
    - from: /Volumes/Media
      to: /mnt/Media
`), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Runner.PathMappings, 1)
	assert.Equal(t, "/Volumes/Media", cfg.Runner.PathMappings[0].From)
	assert.Equal(t, "/mnt/Media", cfg.Runner.PathMappings[0].To)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0o644))

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Queue: QueueConfig{URL: "redis://localhost:6379"}}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:      "missing queue url",
			mutate:    func(cfg *Config) { cfg.Queue.URL = "" },
			wantErr:   true,
			errSubstr: "queue.url is required",
		},
		{
			name:      "script ext without dot",
			mutate:    func(cfg *Config) { cfg.Runner.ScriptExt = "yaml" },
			wantErr:   true,
			errSubstr: "must start with a dot",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.S3 = &S3UploadConfig{Enabled: true}
			},
			wantErr:   true,
			errSubstr: "upload.s3.bucket is required",
		},
		{
			name:      "report enabled without server",
			mutate:    func(cfg *Config) { cfg.Report.Enabled = true },
			wantErr:   true,
			errSubstr: "report.server_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	withAPI := func(api APIConfig) *Config {
		cfg := &Config{API: &api}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name      string
		cfg       *Config
		wantErr   bool
		errSubstr string
	}{
		{
			name:      "missing api section",
			cfg:       &Config{},
			wantErr:   true,
			errSubstr: "api configuration section is required",
		},
		{
			name: "defaults to sqlite and lru",
			cfg:  withAPI(APIConfig{}),
		},
		{
			name: "postgres without host",
			cfg: withAPI(APIConfig{
				Database: APIDatabaseConfig{Driver: "postgres"},
			}),
			wantErr:   true,
			errSubstr: "postgres.host is required",
		},
		{
			name: "redis cache without url",
			cfg: withAPI(APIConfig{
				Cache: APICacheConfig{Driver: "redis"},
			}),
			wantErr:   true,
			errSubstr: "redis_url is required",
		},
		{
			name: "unknown cache driver",
			cfg: withAPI(APIConfig{
				Cache: APICacheConfig{Driver: "memcached"},
			}),
			wantErr:   true,
			errSubstr: "unsupported cache driver",
		},
		{
			name: "require login without users",
			cfg: withAPI(APIConfig{
				Auth: APIAuthConfig{RequireLogin: true},
			}),
			wantErr:   true,
			errSubstr: "needs at least one user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateAPI()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	dsn := PostgresConfig{
		Host: "db", Port: 5432, User: "fat", Password: "secret", Database: "reports",
	}.DSN()

	assert.Equal(t, "host=db port=5432 user=fat password=secret dbname=reports sslmode=disable", dsn)
}
