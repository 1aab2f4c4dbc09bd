package app

import (
	"fmt"
	"log/slog"

	"github.com/coinpulse/coinpulse/pkg/cryptox"
	"github.com/coinpulse/coinpulse/pkg/jwtx"
)

// SessionKeys are the signers and verifiers for both token kinds. Config
// validation keeps the two keys distinct; the use claim is checked on top.
type SessionKeys struct {
	AccessSigner    jwtx.Signer
	RefreshSigner   jwtx.Signer
	AccessVerifier  jwtx.Verifier
	RefreshVerifier jwtx.Verifier
}

// InitSessionKeys builds the session keys for the configured algorithm.
//
//   - HS256: ACCESS_TOKEN_SECRET / REFRESH_TOKEN_SECRET. When unset outside
//     prod, random secrets are generated and every token dies on restart.
//   - EdDSA: PEM keys loaded from AUTH_ACCESS_KEY_FILE / AUTH_REFRESH_KEY_FILE,
//     generated on first start.
func InitSessionKeys(cfg Config, logger *slog.Logger) (SessionKeys, error) {
	var (
		access, refresh jwtx.Signer
		err             error
	)

	switch cfg.Algorithm {
	case jwtx.AlgorithmHS256:
		if access, err = hmacSigner("access", cfg.AccessSecret, logger); err != nil {
			return SessionKeys{}, err
		}
		if refresh, err = hmacSigner("refresh", cfg.RefreshSecret, logger); err != nil {
			return SessionKeys{}, err
		}

	case jwtx.AlgorithmEdDSA:
		if access, err = eddsaSigner("access", cfg.AccessKeyFile); err != nil {
			return SessionKeys{}, err
		}
		if refresh, err = eddsaSigner("refresh", cfg.RefreshKeyFile); err != nil {
			return SessionKeys{}, err
		}

	default:
		return SessionKeys{}, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	accessVerifier, err := jwtx.NewVerifier(cfg.Issuer, jwtx.UseAccess, []jwtx.Signer{access})
	if err != nil {
		return SessionKeys{}, fmt.Errorf("access verifier: %w", err)
	}
	refreshVerifier, err := jwtx.NewVerifier(cfg.Issuer, jwtx.UseRefresh, []jwtx.Signer{refresh})
	if err != nil {
		return SessionKeys{}, fmt.Errorf("refresh verifier: %w", err)
	}

	logger.Info("session keys ready", "algorithm", cfg.Algorithm)
	return SessionKeys{
		AccessSigner:    access,
		RefreshSigner:   refresh,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
	}, nil
}

func hmacSigner(kid, secret string, logger *slog.Logger) (jwtx.Signer, error) {
	if secret == "" {
		generated, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		logger.Warn("no secret configured, using an ephemeral one", "kid", kid)
		secret = generated
	}

	s, err := jwtx.NewSignerHS256(kid, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("%s token secret: %w", kid, err)
	}
	return s, nil
}

func eddsaSigner(kid, path string) (jwtx.Signer, error) {
	pemKey, err := cryptox.LoadOrGenerateEd25519Key(path)
	if err != nil {
		return nil, fmt.Errorf("%s token key: %w", kid, err)
	}
	s, err := jwtx.NewSignerEdDSA(kid, pemKey)
	if err != nil {
		return nil, fmt.Errorf("%s token key: %w", kid, err)
	}
	return s, nil
}
