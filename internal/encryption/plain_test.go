package encryption

import (
	"bytes"
	"errors"
	"testing"

	"assetkeeper/internal/ak"
)

func TestMarkerEncryptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewMarkerEncryptor()

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(sealed.Bytes(), markerHeader) {
				t.Error("Encrypt() output missing marker header")
			}

			dc, err := e.Unlock("ignored")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dc.Decrypt(&sealed, &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("Decrypt() = %q, want %q", plain.Bytes(), tt.input)
			}
		})
	}
}

func TestMarkerEncryptor_RejectsForeignData(t *testing.T) {
	t.Parallel()
	dc, err := NewMarkerEncryptor().Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	err = dc.Decrypt(bytes.NewReader([]byte("plaintext data")), &out)
	if !errors.Is(err, ak.ErrInvalidInput) {
		t.Errorf("Decrypt() error = %v, want ErrInvalidInput", err)
	}
}
