package streamfmt

import (
	"flag"

	"github.com/pkg/errors"
)

// Config holds the reader and writer settings that are exposed to users.
type Config struct {
	Width           string `yaml:"width"`
	BigEndian       bool   `yaml:"big_endian"`
	TabWidth        int    `yaml:"tab_width"`
	LineLength      int    `yaml:"line_length"`
	MaxDepth        int    `yaml:"max_depth"`
	MaxIndent       int    `yaml:"max_indent"`
	CheckedElements bool   `yaml:"checked_elements"`
}

// RegisterFlags registers the config flags with their defaults.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("format.", f)
}

// RegisterFlagsWithPrefix registers the config flags with a name prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Width, prefix+"width", "8", "Code unit width in bits: 8, 16 or 32.")
	f.BoolVar(&cfg.BigEndian, prefix+"big-endian", false, "Encode 16 and 32 bit code units big-endian.")
	f.IntVar(&cfg.TabWidth, prefix+"tab-width", DefaultTabWidth, "Columns per tab when no header declares one, and the tab width written to headers.")
	f.IntVar(&cfg.LineLength, prefix+"line-length", DefaultLineLength, "Line length after which the writer wraps attributes.")
	f.IntVar(&cfg.MaxDepth, prefix+"max-depth", DefaultMaxDepth, "Maximum element nesting accepted by the reader.")
	f.IntVar(&cfg.MaxIndent, prefix+"max-indent", DefaultMaxIndent, "Maximum indentation level emitted by the writer.")
	f.BoolVar(&cfg.CheckedElements, prefix+"checked-elements", false, "Verify element ids passed to EndElement.")
}

// Validate checks the config for values the reader or writer would reject.
func (cfg *Config) Validate() error {
	if _, ok := ParseWidth(cfg.Width); !ok {
		return errors.Errorf("unsupported width %q, supported values: 8, 16, 32", cfg.Width)
	}
	if cfg.TabWidth <= 0 {
		return errors.Errorf("tab width (%d) must be positive", cfg.TabWidth)
	}
	if cfg.LineLength <= 0 {
		return errors.Errorf("line length (%d) must be positive", cfg.LineLength)
	}
	if cfg.MaxDepth <= 0 {
		return errors.Errorf("max depth (%d) must be positive", cfg.MaxDepth)
	}
	if cfg.MaxIndent <= 0 {
		return errors.Errorf("max indent (%d) must be positive", cfg.MaxIndent)
	}
	return nil
}

// CodeUnitWidth returns the parsed Width, or Width8 if it does not parse.
func (cfg *Config) CodeUnitWidth() Width {
	w, ok := ParseWidth(cfg.Width)
	if !ok {
		return Width8
	}
	return w
}

// ReaderOptions converts the config to reader options.
func (cfg *Config) ReaderOptions() []ReaderOption {
	opts := []ReaderOption{
		WithWidth(cfg.CodeUnitWidth()),
		WithTabWidth(cfg.TabWidth),
		WithMaxDepth(cfg.MaxDepth),
	}
	if cfg.BigEndian {
		opts = append(opts, WithBigEndian())
	}
	return opts
}

// WriterOptions converts the config to writer options.
func (cfg *Config) WriterOptions() []WriterOption {
	opts := []WriterOption{
		WithWriterWidth(cfg.CodeUnitWidth()),
		WithWriterTabWidth(cfg.TabWidth),
		WithLineLength(cfg.LineLength),
		WithMaxIndent(cfg.MaxIndent),
	}
	if cfg.BigEndian {
		opts = append(opts, WithWriterBigEndian())
	}
	if cfg.CheckedElements {
		opts = append(opts, WithCheckedElements())
	}
	return opts
}
