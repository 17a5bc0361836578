package app

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"

	"github.com/crewpay/warden/pkg/cryptox"
)

// loadSigningKey returns the Ed25519 signing key for this process. A
// configured key file is loaded; otherwise an ephemeral key is generated,
// which invalidates all outstanding tokens on restart.
func loadSigningKey(cfg Config, logger *slog.Logger) (ed25519.PrivateKey, error) {
	if cfg.SigningKeyFile != "" {
		pemBytes, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		key, err := cryptox.ParseEd25519PrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		logger.Info("signing key loaded", "path", cfg.SigningKeyFile)
		return key, nil
	}

	pemBytes, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	key, err := cryptox.ParseEd25519PrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse generated signing key: %w", err)
	}

	logger.Warn("no signing key configured, generated ephemeral key; tokens will not survive restart")
	return key, nil
}
