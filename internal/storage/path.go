package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// PolicyDocumentKey is the object key of an airline policy document.
func PolicyDocumentKey(fileName string) (string, error) {
	if err := validatePathComponent(fileName, "policy file"); err != nil {
		return "", err
	}
	return fileName, nil
}

// EmbeddingCacheKey is the object key of an airline's embedding cache:
// the lower-cased airline name with spaces replaced by underscores.
func EmbeddingCacheKey(airline string) (string, error) {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(airline)), " ", "_")
	name := slug + "_embeddings.json"
	if err := validatePathComponent(name, "airline"); err != nil {
		return "", err
	}
	return path.Clean(name), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// CleanKey trims leading slashes and rejects empty keys or keys that
// escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}
