// Package source provides resident buffers for streamfmt readers.
//
// A document is either memory-mapped (Open) or read in full through an
// afero filesystem (Loader.Load), in which case zstd and gzip compressed
// files are decompressed transparently. Save writes a document produced by
// a streamfmt.Writer, optionally compressed.
//
// Every Buffer carries a streamfmt.Lease. Closing the buffer revokes the
// lease before the memory is released, so Sections still held by a caller
// panic instead of reading unmapped memory.
package source

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Compression identifies how a stored document is compressed.
type Compression string

const (
	CompressionAuto Compression = "auto" // detect from magic bytes (load only)
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// String returns the compression name.
func (c Compression) String() string {
	return string(c)
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, bool) {
	switch Compression(s) {
	case CompressionAuto, CompressionNone, CompressionZstd, CompressionGzip:
		return Compression(s), true
	case "":
		return CompressionAuto, true
	default:
		return "", false
	}
}

// Config configures how documents are loaded and saved.
type Config struct {
	Mmap        bool   `yaml:"mmap"`
	MaxSize     string `yaml:"max_size"`
	Compression string `yaml:"compression"`
}

// RegisterFlags registers the config flags with their defaults.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&cfg.Mmap, "source.mmap", true, "Memory-map uncompressed files on the local filesystem instead of reading them.")
	f.StringVar(&cfg.MaxSize, "source.max-size", "256MiB", "Largest document, after decompression, that will be loaded.")
	f.StringVar(&cfg.Compression, "source.compression", string(CompressionAuto), "Compression of loaded files (auto, none, zstd, gzip). When saving, auto means none.")
}

// Validate checks the config.
func (cfg *Config) Validate() error {
	if _, ok := ParseCompression(cfg.Compression); !ok {
		return fmt.Errorf("unsupported compression %q, supported values: auto, none, zstd, gzip", cfg.Compression)
	}
	if _, err := cfg.MaxSizeBytes(); err != nil {
		return err
	}
	return nil
}

// MaxSizeBytes returns MaxSize in bytes. An empty MaxSize means no limit.
func (cfg *Config) MaxSizeBytes() (int64, error) {
	if cfg.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(cfg.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max size %q: %w", cfg.MaxSize, err)
	}
	return int64(n), nil
}
