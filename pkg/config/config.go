package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/malbeclabs/playlake/pkg/duck"
)

const (
	// DefaultPath is the config file read at startup when present.
	DefaultPath = "dl.toml"

	DefaultInputURI  = "s3://udacity-dend/"
	DefaultOutputURI = "s3://udacity-spark-parquet/"

	defaultRegion         = "us-west-2"
	defaultMaxConcurrency = 4
)

// Config is the complete configuration for one run. It is loaded once and passed by
// reference to the components that need it; nothing here is copied into the process
// environment.
type Config struct {
	AWS   AWSConfig   `toml:"aws"`
	Paths PathsConfig `toml:"paths"`
	Run   RunConfig   `toml:"run"`
}

// AWSConfig contains the storage credentials and endpoint.
type AWSConfig struct {
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Region          string `toml:"region"`
	EndpointURL     string `toml:"endpoint_url,omitempty"`
	UseSSL          *bool  `toml:"use_ssl,omitempty"`
	URLStyle        string `toml:"url_style,omitempty"`
}

// PathsConfig contains the input and output storage roots.
type PathsConfig struct {
	Input  string `toml:"input"`
	Output string `toml:"output"`
}

// RunConfig contains execution settings.
type RunConfig struct {
	MaxConcurrency int    `toml:"max_concurrency"`
	Threads        int    `toml:"threads"`
	MemoryLimit    string `toml:"memory_limit"`
	PushgatewayURL string `toml:"pushgateway_url,omitempty"`
	Verbose        bool   `toml:"verbose"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		AWS: AWSConfig{
			Region: defaultRegion,
		},
		Paths: PathsConfig{
			Input:  DefaultInputURI,
			Output: DefaultOutputURI,
		},
		Run: RunConfig{
			MaxConcurrency: defaultMaxConcurrency,
		},
	}
}

// Load loads configuration from a TOML file and environment variables on top of the
// defaults. Priority: environment variables > config file > defaults. A missing file at
// the default path is not an error; a missing file at an explicit path is.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist) && configPath == DefaultPath:
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse TOML config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PLAYLAKE_AWS_ACCESS_KEY_ID", &c.AWS.AccessKeyID)
	str("PLAYLAKE_AWS_SECRET_ACCESS_KEY", &c.AWS.SecretAccessKey)
	str("PLAYLAKE_AWS_REGION", &c.AWS.Region)
	str("PLAYLAKE_AWS_ENDPOINT_URL", &c.AWS.EndpointURL)
	str("PLAYLAKE_AWS_URL_STYLE", &c.AWS.URLStyle)
	str("PLAYLAKE_INPUT", &c.Paths.Input)
	str("PLAYLAKE_OUTPUT", &c.Paths.Output)
	str("PLAYLAKE_MEMORY_LIMIT", &c.Run.MemoryLimit)
	str("PLAYLAKE_PUSHGATEWAY_URL", &c.Run.PushgatewayURL)

	if v, ok := lookup("PLAYLAKE_AWS_USE_SSL"); ok && v != "" {
		useSSL := v == "true" || v == "1"
		c.AWS.UseSSL = &useSSL
	}
	if v, ok := lookup("PLAYLAKE_VERBOSE"); ok && v != "" {
		c.Run.Verbose = v == "true" || v == "1"
	}
	for key, dst := range map[string]*int{
		"PLAYLAKE_MAX_CONCURRENCY": &c.Run.MaxConcurrency,
		"PLAYLAKE_THREADS":         &c.Run.Threads,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := duck.ValidateStorageURI(c.Paths.Input); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if err := duck.ValidateStorageURI(c.Paths.Output); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if c.Run.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}
	if c.Run.Threads < 0 {
		return fmt.Errorf("threads must be non-negative")
	}
	if c.UsesS3() {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region cannot be empty")
		}
		if err := c.S3().Validate(); err != nil {
			return fmt.Errorf("invalid AWS config: %w", err)
		}
	}
	return nil
}

// UsesS3 reports whether either storage root is on S3.
func (c *Config) UsesS3() bool {
	return duck.IsS3(c.Paths.Input) || duck.IsS3(c.Paths.Output)
}

// S3 converts the AWS section into the engine's storage config. MinIO-style endpoints
// default to plain HTTP and path-style addressing; AWS defaults to TLS.
func (c *Config) S3() *duck.S3Config {
	s3cfg := &duck.S3Config{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		Endpoint:        c.AWS.EndpointURL,
		Region:          c.AWS.Region,
		URLStyle:        c.AWS.URLStyle,
	}
	s3cfg.UseSSL = !s3cfg.IsMinIO()
	if c.AWS.UseSSL != nil {
		s3cfg.UseSSL = *c.AWS.UseSSL
	}
	if s3cfg.URLStyle == "" {
		s3cfg.URLStyle = "path"
	}
	return s3cfg
}
