package duck

import (
	"fmt"
	"strings"
)

// S3Config holds configuration for S3-compatible storage (AWS S3, MinIO, etc.)
type S3Config struct {
	AccessKeyID     string // S3 access key ID
	SecretAccessKey string // S3 secret access key
	Endpoint        string // S3 endpoint (e.g., "localhost:9000" for MinIO, empty for AWS)
	Region          string // S3 region (e.g., "us-east-1")
	UseSSL          bool   // Whether to use SSL/TLS (typically false for MinIO, true for AWS)
	URLStyle        string // URL style: "path" (for MinIO) or "virtual" (for AWS S3)
}

// IsMinIO reports whether the config points at a non-AWS endpoint.
func (c *S3Config) IsMinIO() bool {
	return c.Endpoint != "" && !strings.Contains(c.Endpoint, "amazonaws.com")
}

// Validate checks that credentials are either both set or both unset. Leaving both unset
// uses the default AWS credential chain, which is not available for MinIO.
func (c *S3Config) Validate() error {
	if c.AccessKeyID == "" && c.SecretAccessKey != "" {
		return fmt.Errorf("secret access key is set but access key id is missing")
	}
	if c.AccessKeyID != "" && c.SecretAccessKey == "" {
		return fmt.Errorf("access key id is set but secret access key is missing")
	}
	if c.IsMinIO() && c.AccessKeyID == "" {
		return fmt.Errorf("MinIO requires both access key id and secret access key (endpoint: %s)", c.Endpoint)
	}
	if c.URLStyle != "" && c.URLStyle != "path" && c.URLStyle != "vhost" && c.URLStyle != "virtual" {
		return fmt.Errorf("invalid S3 URL style %q", c.URLStyle)
	}
	return nil
}

// secretSQL renders the CREATE SECRET statement DuckDB's httpfs extension uses to sign
// requests.
func (c *S3Config) secretSQL() string {
	secretSQL := "CREATE OR REPLACE SECRET playlake_s3 (TYPE s3"
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		secretSQL += fmt.Sprintf(", KEY_ID %s", QuoteLiteral(c.AccessKeyID))
		secretSQL += fmt.Sprintf(", SECRET %s", QuoteLiteral(c.SecretAccessKey))
	} else {
		secretSQL += ", PROVIDER credential_chain"
	}
	if c.Endpoint != "" {
		// DuckDB expects host:port, not a URL.
		endpoint := strings.TrimPrefix(c.Endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		secretSQL += fmt.Sprintf(", ENDPOINT %s", QuoteLiteral(endpoint))
	}
	if c.Region != "" {
		secretSQL += fmt.Sprintf(", REGION %s", QuoteLiteral(c.Region))
	}

	urlStyle := c.URLStyle
	switch urlStyle {
	case "":
		urlStyle = "path"
	case "virtual":
		urlStyle = "vhost"
	}
	useSSL := c.UseSSL
	if c.IsMinIO() {
		useSSL = false
	} else if c.Endpoint == "" {
		useSSL = true
	}
	secretSQL += fmt.Sprintf(", URL_STYLE %s", QuoteLiteral(urlStyle))
	secretSQL += fmt.Sprintf(", USE_SSL %t", useSSL)
	secretSQL += ")"
	return secretSQL
}
