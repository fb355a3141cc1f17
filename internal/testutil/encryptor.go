package testutil

import (
	"assetkeeper/internal/ak"
	"assetkeeper/internal/encryption"
)

// NewTestEncryptor creates a keyless encryptor for testing.
func NewTestEncryptor() ak.Encryptor {
	return encryption.NewMarkerEncryptor()
}
