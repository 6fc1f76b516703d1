package config

import (
	"fmt"
	"os"
	"strings"
)

// ProviderCredentials is one provider's API key/secret pair, read from the
// environment only and never placed on ProviderConfig (which is logged as
// part of startup diagnostics) — the separation of secret-bearing fields
// internal/config/secrets.go establishes, without the Vault integration that
// backs it in the teacher (out of scope; see DESIGN.md).
type ProviderCredentials struct {
	Key    string
	Secret string
}

// LoadProviderCredentials reads <AUTH_ENV_KEY>/<AUTH_ENV_KEY>_SECRET for one
// configured provider. A provider with an empty AuthEnvKey is assumed to
// need no credentials (e.g. a public REST endpoint).
func LoadProviderCredentials(p ProviderConfig) (ProviderCredentials, error) {
	if p.AuthEnvKey == "" {
		return ProviderCredentials{}, nil
	}
	key := os.Getenv(p.AuthEnvKey)
	if key == "" {
		return ProviderCredentials{}, fmt.Errorf("config: missing required environment variable %s for provider %s", p.AuthEnvKey, p.ID)
	}
	secret := os.Getenv(p.AuthEnvKey + "_SECRET")
	return ProviderCredentials{Key: key, Secret: secret}, nil
}

// LoadAllProviderCredentials resolves credentials for every configured
// provider that declares an AuthEnvKey, failing fast if any required secret
// is absent; the orchestrator command treats that error as a startup auth
// failure (exit code 3).
func LoadAllProviderCredentials(providers []ProviderConfig) (map[string]ProviderCredentials, error) {
	out := make(map[string]ProviderCredentials, len(providers))
	var missing []string
	for _, p := range providers {
		creds, err := LoadProviderCredentials(p)
		if err != nil {
			missing = append(missing, p.ID)
			continue
		}
		out[p.ID] = creds
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing credentials for provider(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// DeployEnv reads the DEPLOY_ENV environment selector, falling back to the
// config file's environment.deploy_env when unset.
func DeployEnv(cfg *Config) string {
	if v := os.Getenv("DEPLOY_ENV"); v != "" {
		return v
	}
	return cfg.Environment.DeployEnv
}
