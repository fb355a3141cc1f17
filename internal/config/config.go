package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for ak.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Store      StoreConfig      `toml:"store"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Journal    JournalConfig    `toml:"journal"`
	Archives   []ArchiveConfig  `toml:"archives"`
	Encryption EncryptionConfig `toml:"encryption"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// StoreConfig locates the asset store and selects its layout.
type StoreConfig struct {
	Root             string `toml:"root"`
	Variant          string `toml:"variant"`           // "imagine" (sub-categories) or "ibgc" (flat)
	DefaultExtension string `toml:"default_extension"` // used when an upload carries no extension
}

// LedgerConfig locates the version document.
type LedgerConfig struct {
	Path string `toml:"path"`
}

// JournalConfig represents configuration for the transaction journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents configuration for an archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds the age key pair used to seal archived documents.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "marker" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	Armor          bool   `toml:"armor,omitempty"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `toml:"textfile,omitempty"` // empty disables the export
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Root:             filepath.Join(baseDir, "Assets"),
			Variant:          "imagine",
			DefaultExtension: "webp",
		},
		Ledger:  LedgerConfig{Path: filepath.Join(baseDir, "version.json")},
		Journal: JournalConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "journal")},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "ak.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "ak.key"),
		},
	}
}

// Validate reports configuration errors that would only surface later.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Root == "" {
		errs = append(errs, fmt.Errorf("store.root is required"))
	}
	switch c.Store.Variant {
	case "imagine", "ibgc":
	default:
		errs = append(errs, fmt.Errorf("store.variant %q must be imagine or ibgc", c.Store.Variant))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, fmt.Errorf("ledger.path is required"))
	}
	seen := make(map[string]bool, len(c.Archives))
	for i, a := range c.Archives {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("archives[%d].name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("archive name %q is used more than once", a.Name))
		}
		seen[a.Name] = true
	}
	return errors.Join(errs...)
}

// Archive returns the archive config with the given name.
func (c *Config) Archive(name string) (ArchiveConfig, bool) {
	for _, a := range c.Archives {
		if a.Name == name {
			return a, true
		}
	}
	return ArchiveConfig{}, false
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. An existing file is an error.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
