package token

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SignerConfig selects and keys a Signer
type SignerConfig struct {
	Algorithm     string // HS256, RS256 or ES256
	Secret        string // HS256 only
	PrivateKeyPEM string // RS256/ES256; a key is generated when empty
	KeyID         string
}

// NewSigner builds the Signer described by cfg. For asymmetric algorithms
// without a configured key a fresh one is generated, so tokens do not
// survive a restart.
func NewSigner(cfg SignerConfig) (Signer, error) {
	switch cfg.Algorithm {
	case AlgHS256, "":
		if cfg.Secret == "" {
			return nil, errors.New("[NewSigner] HS256 requires a secret")
		}
		return NewHMACSigner(cfg.Secret), nil

	case AlgRS256, AlgES256:
		kid := cfg.KeyID
		if kid == "" {
			kid = uuid.NewString()
		}
		var (
			kp  *KeyPair
			err error
		)
		switch {
		case cfg.PrivateKeyPEM != "":
			kp, err = LoadKeyPairFromPEM(kid, cfg.PrivateKeyPEM)
			if err == nil && kp.Algorithm != cfg.Algorithm {
				err = errors.Errorf("key is %s, configured algorithm is %s", kp.Algorithm, cfg.Algorithm)
			}
		case cfg.Algorithm == AlgRS256:
			kp, err = GenerateRSAKeyPair(kid, 2048)
		default:
			kp, err = GenerateECDSAKeyPair(kid)
		}
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner]")
		}
		return NewKeyPairSigner(kp), nil

	default:
		return nil, errors.Errorf("[NewSigner] unsupported algorithm %q", cfg.Algorithm)
	}
}
