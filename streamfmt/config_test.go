package streamfmt

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func defaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8", cfg.Width)
	assert.Equal(t, Width8, cfg.CodeUnitWidth())
	assert.Equal(t, DefaultTabWidth, cfg.TabWidth)
	assert.Equal(t, DefaultLineLength, cfg.LineLength)
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, DefaultMaxIndent, cfg.MaxIndent)
	assert.False(t, cfg.BigEndian)
	assert.False(t, cfg.CheckedElements)
}

func TestConfig_Flags(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-format.width=16", "-format.big-endian", "-format.tab-width=2"}))

	assert.Equal(t, Width16, cfg.CodeUnitWidth())
	assert.True(t, cfg.BigEndian)
	assert.Equal(t, 2, cfg.TabWidth)
}

func TestConfig_YAMLOverridesDefaults(t *testing.T) {
	cfg := defaultConfig()
	in := "width: \"32\"\nline_length: 80\nchecked_elements: true\n"
	dec := yaml.NewDecoder(bytes.NewReader([]byte(in)))
	dec.KnownFields(true)
	require.NoError(t, dec.Decode(&cfg))

	assert.Equal(t, Width32, cfg.CodeUnitWidth())
	assert.Equal(t, 80, cfg.LineLength)
	assert.True(t, cfg.CheckedElements)
	assert.Equal(t, DefaultTabWidth, cfg.TabWidth)
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]func(cfg *Config){
		"bad width":        func(cfg *Config) { cfg.Width = "12" },
		"zero tab width":   func(cfg *Config) { cfg.TabWidth = 0 },
		"zero line length": func(cfg *Config) { cfg.LineLength = 0 },
		"negative depth":   func(cfg *Config) { cfg.MaxDepth = -1 },
		"zero max indent":  func(cfg *Config) { cfg.MaxIndent = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := defaultConfig()
	cfg.Width = "16"
	cfg.BigEndian = true
	cfg.TabWidth = 2
	cfg.CheckedElements = true

	var buf bytes.Buffer
	w := NewWriter(&buf, cfg.WriterOptions()...)
	id, err := w.BeginElement("A")
	require.NoError(t, err)
	assert.NotEqual(t, NoElementID, id)
	require.NoError(t, w.EndElement(id))
	require.NoError(t, w.Flush())

	r := NewReader(NewCursor(buf.Bytes()), cfg.ReaderOptions()...)
	got, err := readTokens(r)
	require.NoError(t, err)
	assert.Equal(t, []token{begin("A"), end()}, got)
	assert.Equal(t, 2, r.Header().TabWidth)
}
