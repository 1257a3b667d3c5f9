package app

import (
	"fmt"
	"log/slog"

	"github.com/factstofaith/gigglefits-sub006/pkg/jwtx"
)

// InitAuthKeys generates the Ed25519 signing keys. Keys live in memory only,
// so every restart invalidates outstanding access tokens.
func InitAuthKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager", "num_keys", cfg.NumKeys)

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		NumKeys:   cfg.NumKeys,
		KeyPrefix: cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing keys",
		"num_keys", km.NumSigners(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("all existing tokens are now invalid due to key rotation on startup")
	return km, nil
}
