package encryption

import (
	"bytes"
	"fmt"
	"io"

	"assetkeeper/internal/ak"
)

// markerHeader is prepended by MarkerEncryptor so sealed output never
// equals its plaintext.
var markerHeader = []byte("AKENC\x00\x00\x01")

// MarkerEncryptor is a deterministic, keyless ak.Encryptor. It frames data
// with a fixed header and is intended for tests and local dry runs.
type MarkerEncryptor struct {
	configured bool
}

var _ ak.Encryptor = (*MarkerEncryptor)(nil)

func NewMarkerEncryptor() *MarkerEncryptor {
	return &MarkerEncryptor{configured: true}
}

func (e *MarkerEncryptor) Setup(string) error {
	e.configured = true
	return nil
}

func (e *MarkerEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(markerHeader); err != nil {
		return fmt.Errorf("writing marker header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *MarkerEncryptor) Unlock(string) (ak.DecryptionContext, error) {
	return markerContext{}, nil
}

func (e *MarkerEncryptor) IsConfigured() bool {
	return e.configured
}

type markerContext struct{}

func (markerContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(markerHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading marker header: %w", err)
	}
	if !bytes.Equal(header, markerHeader) {
		return ak.InvalidInputf("data was not sealed by the marker encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
