package duck

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidateStorageURI accepts s3://bucket/prefix, file:///path, or a bare local path.
func ValidateStorageURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("storage URI is required")
	}

	if path, found := strings.CutPrefix(uri, "file://"); found {
		if path == "" {
			return fmt.Errorf("storage URI file:// path cannot be empty")
		}
		return nil
	}

	if strings.HasPrefix(uri, "s3://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return fmt.Errorf("invalid s3:// URI format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("s3:// URI must include a bucket name (e.g., s3://bucket-name/path)")
		}
		bucket := parsed.Host
		if len(bucket) < 3 || len(bucket) > 63 {
			return fmt.Errorf("s3 bucket name must be between 3 and 63 characters")
		}
		return nil
	}

	if strings.Contains(uri, "://") {
		return fmt.Errorf("storage URI must start with file:// or s3:// or be a local path (got: %q)", uri)
	}
	return nil
}

// IsS3 reports whether uri addresses S3-compatible object storage.
func IsS3(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// SplitS3 returns the bucket and key prefix of an s3:// URI. The prefix has no leading
// slash and, when non-empty, a trailing slash.
func SplitS3(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3:// URI: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3:// URI must include a bucket name: %q", uri)
	}
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// LocalPath converts a file:// URI or bare path to an absolute filesystem path.
func LocalPath(uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", uri, err)
	}
	return abs, nil
}

// Join appends slash-separated elements to a storage root. s3:// roots keep their
// scheme; local roots are resolved to absolute paths so the engine sees the same
// location regardless of its working directory.
func Join(root string, elem ...string) (string, error) {
	if IsS3(root) {
		out := strings.TrimSuffix(root, "/")
		for _, e := range elem {
			e = strings.Trim(e, "/")
			if e == "" {
				continue
			}
			out += "/" + e
		}
		return out, nil
	}
	base, err := LocalPath(root)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{base}, elem...)...), nil
}

// RedactedStorageURI strips credentials that may appear as query parameters.
func RedactedStorageURI(uri string) string {
	if !IsS3(uri) {
		return uri
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return "[REDACTED: invalid URI]"
	}
	if parsed.RawQuery != "" {
		query, err := url.ParseQuery(parsed.RawQuery)
		if err == nil {
			sensitiveKeys := []string{"accesskey", "secretkey", "password", "token", "credential"}
			for key := range query {
				keyLower := strings.ToLower(key)
				for _, sensitive := range sensitiveKeys {
					if strings.Contains(keyLower, sensitive) {
						query[key] = []string{"REDACTED"}
					}
				}
			}
			parsed.RawQuery = query.Encode()
		}
	}
	return parsed.String()
}
