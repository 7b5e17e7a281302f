package userauth

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by LoadConfigFromEnv.
const EnvPrefix = "AUTH_"

// LoadConfigFromEnv overlays AUTH_* environment variables onto
// [DefaultConfig] and reads key files named by AUTH_JWT_PRIVATE_KEY_FILE and
// AUTH_JWT_PUBLIC_KEY_FILE. The result is not validated; Build does that.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.JWT.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if cfg.JWT.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}

	return cfg, nil
}
