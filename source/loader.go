package source

import (
	"bufio"
	"bytes"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/Neumenon/streamfmt/streamfmt"
)

// ErrTooLarge is returned when a document exceeds the configured maximum
// size.
var ErrTooLarge = errors.New("document exceeds maximum size")

// Loader makes documents resident and saves formatted output.
type Loader struct {
	cfg         Config
	fs          afero.Fs
	logger      log.Logger
	metrics     *metrics
	maxSize     int64
	compression Compression
}

// NewLoader creates a loader over fs. Memory mapping is only used when fs
// is the OS filesystem.
func NewLoader(cfg Config, fs afero.Fs, logger log.Logger, reg prometheus.Registerer) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid source config")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	maxSize, _ := cfg.MaxSizeBytes()
	compression, _ := ParseCompression(cfg.Compression)
	return &Loader{
		cfg:         cfg,
		fs:          fs,
		logger:      logger,
		metrics:     newMetrics(reg),
		maxSize:     maxSize,
		compression: compression,
	}, nil
}

// Load makes the document at path resident. The caller must Close the
// returned buffer once it, and every Section read from it, is no longer
// needed.
func (l *Loader) Load(path string) (*Buffer, error) {
	start := time.Now()
	b, method, reason, err := l.load(path)
	if err != nil {
		l.metrics.failures.WithLabelValues(reason).Inc()
		level.Warn(l.logger).Log("msg", "failed to load document", "path", path, "err", err)
		return nil, err
	}

	elapsed := time.Since(start)
	l.metrics.loads.WithLabelValues(method).Inc()
	l.metrics.bytesLoaded.Add(float64(b.Len()))
	l.metrics.duration.Observe(elapsed.Seconds())
	level.Debug(l.logger).Log("msg", "loaded document", "path", path, "method", method, "bytes", b.Len(), "duration", elapsed)
	return b, nil
}

func (l *Loader) load(path string) (b *Buffer, method, reason string, err error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, "", reasonOpen, errors.Wrap(err, "open document")
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	magic := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", reasonOpen, errors.Wrap(err, "read document")
	}
	magic = magic[:n]

	compression := l.compression
	if compression == CompressionAuto {
		compression = detectCompression(magic)
	}

	if compression == CompressionNone && l.cfg.Mmap {
		if _, ok := l.fs.(*afero.OsFs); ok {
			f.Close()
			f = nil
			b, err := Open(path)
			if err != nil {
				return nil, "", reasonOpen, err
			}
			if l.maxSize > 0 && int64(b.Len()) > l.maxSize {
				b.Close()
				return nil, "", reasonTooLarge, errors.Wrapf(ErrTooLarge, "%s is %d bytes", path, b.Len())
			}
			return b, methodMmap, "", nil
		}
	}

	r := io.MultiReader(bytes.NewReader(magic), f)
	switch compression {
	case CompressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, "", reasonDecompress, errors.Wrap(err, "zstd reader")
		}
		defer dec.Close()
		r = dec
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", reasonDecompress, errors.Wrap(err, "gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	data, err := readLimited(r, l.maxSize)
	if errors.Is(err, ErrTooLarge) {
		return nil, "", reasonTooLarge, errors.Wrapf(err, "%s", path)
	}
	if err != nil {
		return nil, "", reasonDecompress, errors.Wrapf(err, "read %s", path)
	}
	return NewBuffer(path, data), methodRead, "", nil
}

func detectCompression(magic []byte) Compression {
	switch {
	case bytes.HasPrefix(magic, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(magic, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Save creates the file at path and calls fn with a writer that emits to
// it, compressed according to the config. The writer is flushed after fn
// returns, so fn must close every element it opens.
func (l *Loader) Save(path string, fn func(w *streamfmt.Writer) error, opts ...streamfmt.WriterOption) error {
	return l.save(path, func(sink io.Writer) (int64, error) {
		w := streamfmt.NewWriter(sink, opts...)
		if err := fn(w); err != nil {
			return 0, err
		}
		if err := w.Flush(); err != nil {
			return 0, err
		}
		return w.BytesWritten(), nil
	})
}

// SaveBytes writes data to path unchanged apart from compression.
func (l *Loader) SaveBytes(path string, data []byte) error {
	return l.save(path, func(sink io.Writer) (int64, error) {
		n, err := sink.Write(data)
		return int64(n), errors.Wrap(err, "write document")
	})
}

func (l *Loader) save(path string, fn func(sink io.Writer) (int64, error)) (err error) {
	f, err := l.fs.Create(path)
	if err != nil {
		return errors.Wrap(err, "create document")
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrap(closeErr, "close document")
		}
	}()

	buf := bufio.NewWriter(f)
	var sink io.Writer = buf
	var enc io.WriteCloser
	switch l.compression {
	case CompressionZstd:
		if enc, err = zstd.NewWriter(buf); err != nil {
			return errors.Wrap(err, "zstd writer")
		}
		sink = enc
	case CompressionGzip:
		enc = gzip.NewWriter(buf)
		sink = enc
	}

	n, err := fn(sink)
	if err != nil {
		closeQuietly(enc)
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return errors.Wrap(err, "close compressor")
		}
	}
	if err := buf.Flush(); err != nil {
		return errors.Wrap(err, "flush document")
	}

	l.metrics.saves.Inc()
	l.metrics.bytesSaved.Add(float64(n))
	level.Debug(l.logger).Log("msg", "saved document", "path", path, "compression", l.compression, "bytes", n)
	return nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
