package source

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Neumenon/streamfmt/streamfmt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDoc = "~~!Format=1; Tab=4\r\n\r\n~Root; x=1\r\n\t\r\n\t~Child; name=has space\r\n"

func defaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func newTestLoader(t *testing.T, cfg Config, fs afero.Fs) (*Loader, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	l, err := NewLoader(cfg, fs, log.NewNopLogger(), reg)
	require.NoError(t, err)
	return l, reg
}

func elementNames(t *testing.T, b *Buffer) []string {
	t.Helper()
	var names []string
	err := streamfmt.Walk(b.NewReader(), func(ev streamfmt.Event) error {
		if ev.Kind == streamfmt.BlobBeginElement {
			names = append(names, ev.Name.String())
		}
		return nil
	})
	require.NoError(t, err)
	return names
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestLoader_Load(t *testing.T) {
	tests := map[string][]byte{
		"plain": []byte(testDoc),
		"zstd":  zstdCompress(t, []byte(testDoc)),
		"gzip":  gzipCompress(t, []byte(testDoc)),
	}
	for name, stored := range tests {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/doc.sf", stored, 0o644))

			l, _ := newTestLoader(t, defaultConfig(), fs)
			b, err := l.Load("/doc.sf")
			require.NoError(t, err)
			defer b.Close()

			assert.False(t, b.Mapped())
			assert.Equal(t, "/doc.sf", b.Path())
			assert.Equal(t, testDoc, string(b.Bytes()))
			assert.Equal(t, []string{"Root", "Child"}, elementNames(t, b))

			assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.loads.WithLabelValues(methodRead)))
			assert.Equal(t, float64(len(testDoc)), testutil.ToFloat64(l.metrics.bytesLoaded))
		})
	}
}

func TestLoader_ExplicitCompression(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/doc.sf", []byte(testDoc), 0o644))

	cfg := defaultConfig()
	cfg.Compression = string(CompressionZstd)
	l, _ := newTestLoader(t, cfg, fs)

	_, err := l.Load("/doc.sf")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.failures.WithLabelValues(reasonDecompress)))
}

func TestLoader_TooLarge(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/doc.sf", zstdCompress(t, []byte(testDoc)), 0o644))

	cfg := defaultConfig()
	cfg.MaxSize = "10B"
	l, _ := newTestLoader(t, cfg, fs)

	_, err := l.Load("/doc.sf")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.failures.WithLabelValues(reasonTooLarge)))
}

func TestLoader_MissingFile(t *testing.T) {
	l, _ := newTestLoader(t, defaultConfig(), afero.NewMemMapFs())
	_, err := l.Load("/missing.sf")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.failures.WithLabelValues(reasonOpen)))
}

func TestLoader_Mmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.sf")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))

	l, _ := newTestLoader(t, defaultConfig(), afero.NewOsFs())
	b, err := l.Load(path)
	require.NoError(t, err)

	assert.True(t, b.Mapped())
	assert.Equal(t, len(testDoc), b.Len())
	assert.Equal(t, ComputeCRC([]byte(testDoc)), b.Checksum())
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.loads.WithLabelValues(methodMmap)))

	// sections must not outlive the mapping
	r := b.NewReader()
	name, ok, err := r.TryReadBeginElement()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Root", name.String())

	require.NoError(t, b.Close())
	assert.Panics(t, func() { _ = name.String() })
	assert.Panics(t, func() { b.Bytes() })
	assert.NoError(t, b.Close())
}

func TestLoader_MmapDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.sf")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o644))

	cfg := defaultConfig()
	cfg.Mmap = false
	l, _ := newTestLoader(t, cfg, afero.NewOsFs())
	b, err := l.Load(path)
	require.NoError(t, err)
	defer b.Close()
	assert.False(t, b.Mapped())
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, elementNames(t, b))
}

func writeTestDoc(w *streamfmt.Writer) error {
	root, err := w.BeginElement("Root")
	if err != nil {
		return err
	}
	if err := w.WriteAttribute("x", "1"); err != nil {
		return err
	}
	child, err := w.BeginElement("Child")
	if err != nil {
		return err
	}
	if err := w.WriteAttribute("name", "has space"); err != nil {
		return err
	}
	if err := w.EndElement(child); err != nil {
		return err
	}
	return w.EndElement(root)
}

func TestLoader_Save(t *testing.T) {
	for _, compression := range []Compression{CompressionAuto, CompressionNone, CompressionZstd, CompressionGzip} {
		t.Run(string(compression), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			cfg := defaultConfig()
			cfg.Compression = string(compression)
			l, _ := newTestLoader(t, cfg, fs)

			require.NoError(t, l.Save("/out.sf", writeTestDoc))
			assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.saves))
			assert.Equal(t, float64(len(testDoc)), testutil.ToFloat64(l.metrics.bytesSaved))

			stored, err := afero.ReadFile(fs, "/out.sf")
			require.NoError(t, err)
			if compression == CompressionAuto || compression == CompressionNone {
				assert.Equal(t, testDoc, string(stored))
			} else {
				assert.NotEqual(t, testDoc, string(stored))
			}

			b, err := l.Load("/out.sf")
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, testDoc, string(b.Bytes()))
		})
	}
}

func TestLoader_SaveWriterOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, _ := newTestLoader(t, defaultConfig(), fs)
	require.NoError(t, l.Save("/out.sf", writeTestDoc, streamfmt.WithWriterWidth(streamfmt.Width16)))

	stored, err := afero.ReadFile(fs, "/out.sf")
	require.NoError(t, err)
	want, err := streamfmt.EncodeString(testDoc, streamfmt.Width16, false)
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestLoader_SaveBytes(t *testing.T) {
	raw := []byte("~A; x=1\r\n  ~~ kept as is\r\n")
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionGzip} {
		t.Run(string(compression), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			cfg := defaultConfig()
			cfg.Compression = string(compression)
			l, _ := newTestLoader(t, cfg, fs)

			require.NoError(t, l.SaveBytes("/raw.sf", raw))
			assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.saves))
			assert.Equal(t, float64(len(raw)), testutil.ToFloat64(l.metrics.bytesSaved))

			b, err := l.Load("/raw.sf")
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, raw, b.Bytes())
		})
	}
}

func TestLoader_SaveUnclosedElement(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := defaultConfig()
	cfg.Compression = string(CompressionZstd)
	l, _ := newTestLoader(t, cfg, fs)

	err := l.Save("/out.sf", func(w *streamfmt.Writer) error {
		_, err := w.BeginElement("Open")
		return err
	})
	assert.ErrorIs(t, err, streamfmt.ErrUnclosedElements)
	assert.Equal(t, 0.0, testutil.ToFloat64(l.metrics.saves))
}

func TestConfig_Validate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Mmap)
	n, err := cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(256<<20), n)

	cfg.Compression = "lz4"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.MaxSize = "lots"
	assert.Error(t, cfg.Validate())

	cfg.MaxSize = ""
	n, err = cfg.MaxSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = NewLoader(Config{Compression: "lz4"}, afero.NewMemMapFs(), nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionAuto, "auto": CompressionAuto, "none": CompressionNone, "zstd": CompressionZstd, "gzip": CompressionGzip} {
		got, ok := ParseCompression(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseCompression("brotli")
	assert.False(t, ok)
}
