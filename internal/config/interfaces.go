package config

import "context"

// SecretProvider resolves secret values by key. SSM in deployed environments,
// the process environment locally.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Implementations batch internally to respect API limits.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
