// Package archive publishes committed metadata documents and the version
// ledger to one or more off-store backends.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"assetkeeper/internal/ak"
)

// SealedSuffix is appended to keys of encrypted objects.
const SealedSuffix = ".age"

// LatestKey names the object holding the most recently published version.
const LatestKey = "LATEST"

// Backend stores archive objects by key.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Put stores size bytes read from r under key, replacing any previous object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get writes the object stored under key to w. A missing key returns
	// an error matching ak.ErrNotFound.
	Get(ctx context.Context, key string, w io.Writer) error

	// ValidateSetup verifies the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Publisher implements ak.Publisher on top of archive backends.
type Publisher struct {
	backends  []Backend
	encryptor ak.Encryptor
	logger    ak.Logger

	// mu orders LATEST updates from concurrent commits.
	mu sync.Mutex
}

var _ ak.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher. encryptor may be nil to archive plaintext.
func NewPublisher(backends []Backend, encryptor ak.Encryptor, logger ak.Logger) *Publisher {
	if logger == nil {
		logger = ak.NewNopLogger()
	}
	return &Publisher{backends: backends, encryptor: encryptor, logger: logger}
}

// ObjectKey returns the archive key of a document published at version.
func ObjectKey(version int64, name string, sealed bool) string {
	key := path.Join("v"+strconv.FormatInt(version, 10), name)
	if sealed {
		key += SealedSuffix
	}
	return key
}

// Publish writes every document under v<version>/ on every backend and
// then moves LATEST forward to version. LATEST never moves backwards when
// commits are published out of order. A backend that fails is skipped for the remaining
// documents; the errors of all failed backends are returned together.
func (p *Publisher) Publish(ctx context.Context, version ak.VersionRecord, docs []ak.Document) error {
	sealed := p.encryptor != nil
	objects := make(map[string][]byte, len(docs))
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		data := doc.Data
		if sealed {
			var buf bytes.Buffer
			if err := p.encryptor.Encrypt(bytes.NewReader(doc.Data), &buf); err != nil {
				return fmt.Errorf("encrypting %s: %w", doc.Name, err)
			}
			data = buf.Bytes()
		}
		key := ObjectKey(version.CurrentVersion, doc.Name, sealed)
		objects[key] = data
		keys = append(keys, key)
	}
	var failed []string
	for _, b := range p.backends {
		if err := p.publishTo(ctx, b, keys, objects, version.CurrentVersion); err != nil {
			p.logger.Warn("archive publish failed", "backend", b.Name(), "version", version.CurrentVersion, "error", err)
			failed = append(failed, fmt.Sprintf("%s: %v", b.Name(), err))
			continue
		}
		p.logger.Debug("archive published", "backend", b.Name(), "version", version.CurrentVersion, "objects", len(keys))
	}
	if len(failed) > 0 {
		return fmt.Errorf("publishing version %d: %s", version.CurrentVersion, strings.Join(failed, "; "))
	}
	return nil
}

func (p *Publisher) publishTo(ctx context.Context, b Backend, keys []string, objects map[string][]byte, version int64) error {
	for _, key := range keys {
		data := objects[key]
		if err := b.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	current, err := Latest(ctx, b)
	if err != nil {
		return fmt.Errorf("reading %s: %w", LatestKey, err)
	}
	if current >= version {
		p.logger.Debug("archive already at a later version", "backend", b.Name(), "latest", current, "version", version)
		return nil
	}
	latest := []byte(strconv.FormatInt(version, 10) + "\n")
	if err := b.Put(ctx, LatestKey, bytes.NewReader(latest), int64(len(latest))); err != nil {
		return fmt.Errorf("put %s: %w", LatestKey, err)
	}
	return nil
}

// Latest returns the most recently published version on b, or 0 when
// nothing was published yet.
func Latest(ctx context.Context, b Backend) (int64, error) {
	var buf bytes.Buffer
	if err := b.Get(ctx, LatestKey, &buf); err != nil {
		if ak.KindOf(err) == ak.KindNotFound {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(buf.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", LatestKey, err)
	}
	return v, nil
}

// Fetch writes the document name as published at version to w. Sealed
// objects are tried first and need dc to decrypt; dc may be nil when the
// archive holds plaintext.
func Fetch(ctx context.Context, b Backend, version int64, name string, dc ak.DecryptionContext, w io.Writer) error {
	var buf bytes.Buffer
	err := b.Get(ctx, ObjectKey(version, name, true), &buf)
	if err == nil {
		if dc == nil {
			return ak.InvalidInputf("%s is encrypted; unlock the private key to read it", name)
		}
		return dc.Decrypt(&buf, w)
	}
	if ak.KindOf(err) != ak.KindNotFound {
		return err
	}
	return b.Get(ctx, ObjectKey(version, name, false), w)
}
