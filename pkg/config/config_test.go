package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestConfig_Load_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load(DefaultPath)
	require.NoError(t, err)
	require.Equal(t, DefaultInputURI, cfg.Paths.Input)
	require.Equal(t, DefaultOutputURI, cfg.Paths.Output)
	require.Equal(t, defaultMaxConcurrency, cfg.Run.MaxConcurrency)
	require.Equal(t, defaultRegion, cfg.AWS.Region)
}

func TestConfig_Load_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[aws]
access_key_id = "AKIAEXAMPLE"
secret_access_key = "secret"
endpoint_url = "http://127.0.0.1:9000"

[paths]
input = "file:///data/in"
output = "s3://playlake-out/run"

[run]
max_concurrency = 2
pushgateway_url = "http://pushgateway:9091"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "AKIAEXAMPLE", cfg.AWS.AccessKeyID)
	require.Equal(t, "secret", cfg.AWS.SecretAccessKey)
	require.Equal(t, defaultRegion, cfg.AWS.Region)
	require.Equal(t, "file:///data/in", cfg.Paths.Input)
	require.Equal(t, "s3://playlake-out/run", cfg.Paths.Output)
	require.Equal(t, 2, cfg.Run.MaxConcurrency)
	require.Equal(t, "http://pushgateway:9091", cfg.Run.PushgatewayURL)
	require.NoError(t, cfg.Validate())

	s3cfg := cfg.S3()
	require.Equal(t, "http://127.0.0.1:9000", s3cfg.Endpoint)
	require.False(t, s3cfg.UseSSL)
	require.Equal(t, "path", s3cfg.URLStyle)
}

func TestConfig_Load_Errors(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed toml", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[aws\naccess_key_id = "), 0o600))
		_, err := Load(path)
		require.ErrorContains(t, err, "failed to parse TOML config")
	})
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"PLAYLAKE_AWS_ACCESS_KEY_ID":     "env-key",
		"PLAYLAKE_AWS_SECRET_ACCESS_KEY": "env-secret",
		"PLAYLAKE_AWS_USE_SSL":           "false",
		"PLAYLAKE_OUTPUT":                "file:///tmp/out",
		"PLAYLAKE_MAX_CONCURRENCY":       "8",
		"PLAYLAKE_VERBOSE":               "1",
		"PLAYLAKE_INPUT":                 "",
	}))
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.AWS.AccessKeyID)
	require.Equal(t, "env-secret", cfg.AWS.SecretAccessKey)
	require.NotNil(t, cfg.AWS.UseSSL)
	require.False(t, *cfg.AWS.UseSSL)
	require.Equal(t, DefaultInputURI, cfg.Paths.Input)
	require.Equal(t, "file:///tmp/out", cfg.Paths.Output)
	require.Equal(t, 8, cfg.Run.MaxConcurrency)
	require.True(t, cfg.Run.Verbose)

	err = DefaultConfig().applyEnv(mapLookup(map[string]string{"PLAYLAKE_THREADS": "many"}))
	require.ErrorContains(t, err, "invalid PLAYLAKE_THREADS")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults use credential chain", mutate: func(c *Config) {}},
		{name: "local only", mutate: func(c *Config) {
			c.Paths.Input = "file:///in"
			c.Paths.Output = "/tmp/out"
			c.AWS.Region = ""
		}},
		{name: "bad input", mutate: func(c *Config) { c.Paths.Input = "" }, wantErr: "invalid input path"},
		{name: "bad output", mutate: func(c *Config) { c.Paths.Output = "gs://x/y" }, wantErr: "invalid output path"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Run.MaxConcurrency = 0 }, wantErr: "max_concurrency"},
		{name: "missing region", mutate: func(c *Config) { c.AWS.Region = "" }, wantErr: "AWS region cannot be empty"},
		{name: "half credentials", mutate: func(c *Config) { c.AWS.AccessKeyID = "AKIA" }, wantErr: "invalid AWS config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_S3_AWSDefaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AWS.AccessKeyID = "AKIA"
	cfg.AWS.SecretAccessKey = "secret"

	s3cfg := cfg.S3()
	require.True(t, s3cfg.UseSSL)
	require.Empty(t, s3cfg.Endpoint)
	require.Equal(t, defaultRegion, s3cfg.Region)
}
