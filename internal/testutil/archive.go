package testutil

import (
	"assetkeeper/internal/archive"
)

// NewTestArchive creates an in-memory archive backend for testing.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive("test-archive")
}
