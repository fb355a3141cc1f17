package ak

import (
	"context"
	"io"
	"time"
)

// Publisher pushes committed documents somewhere outside the store.
type Publisher interface {
	Publish(ctx context.Context, version VersionRecord, docs []Document) error
}

// Recorder collects transaction metrics.
type Recorder interface {
	ObserveTransaction(operation, outcome string, d time.Duration)
	SetVersion(version int64)
}

// NopRecorder discards metrics.
type NopRecorder struct{}

func (NopRecorder) ObserveTransaction(string, string, time.Duration) {}
func (NopRecorder) SetVersion(int64)                                 {}

// Encryptor protects published documents. Encryption needs only the
// public key; decryption needs the passphrase that guards the private key.
type Encryptor interface {
	// Setup generates a key pair and stores the private key under passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context for reading archives.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
