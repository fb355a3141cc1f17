package encryption

import (
	"fmt"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/config"
)

// NewEncryptorFromConfig returns the configured encryptor, or nil when
// archives are written in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (ak.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "none":
		return nil, nil
	case "marker":
		return NewMarkerEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
