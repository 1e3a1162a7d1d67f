package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/Neumenon/streamfmt/source"
	"github.com/Neumenon/streamfmt/streamfmt"
)

// environment is the state shared by every command.
type environment struct {
	cfg    *Config
	log    *loggerConfig
	stdout io.Writer
	fs     afero.Fs
	reg    prometheus.Registerer
	loader *source.Loader
}

// Loader validates the config and returns the document loader, creating it
// on first use.
func (e *environment) Loader() (*source.Loader, error) {
	if e.loader != nil {
		return e.loader, nil
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.reg == nil {
		e.reg = prometheus.NewRegistry()
	}
	l, err := source.NewLoader(e.cfg.Source, e.fs, e.log.Logger(), e.reg)
	if err != nil {
		return nil, err
	}
	e.loader = l
	return l, nil
}

// withDocument loads path and calls fn with a reader over it.
func (e *environment) withDocument(path string, fn func(b *source.Buffer, r *streamfmt.Reader) error) error {
	loader, err := e.Loader()
	if err != nil {
		return err
	}
	b, err := loader.Load(path)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b, b.NewReader(e.cfg.Format.ReaderOptions()...))
}

// checkCommand validates documents.
type checkCommand struct {
	env   *environment
	files []string
}

func (c *checkCommand) Register(app *kingpin.Application, env *environment) {
	c.env = env
	cmd := app.Command("check", "Validate one or more documents.").Action(c.run)
	cmd.Arg("files", "Documents to validate.").Required().ExistingFilesVar(&c.files)
}

func (c *checkCommand) run(*kingpin.ParseContext) error {
	logger := c.env.log.Logger()
	failed := 0
	for _, path := range c.files {
		err := c.env.withDocument(path, func(_ *source.Buffer, r *streamfmt.Reader) error {
			st, err := streamfmt.Validate(r)
			if err != nil {
				return err
			}
			level.Info(logger).Log("msg", "document is valid", "path", path, "elements", st.Elements, "attributes", st.Attributes, "max_depth", st.MaxDepth)
			return nil
		})
		if err != nil {
			failed++
			fmt.Fprintf(c.env.stdout, "%s: %v\n", path, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed validation", failed, len(c.files))
	}
	return nil
}

// dumpCommand prints the token stream of a document.
type dumpCommand struct {
	env  *environment
	file string
}

func (c *dumpCommand) Register(app *kingpin.Application, env *environment) {
	c.env = env
	cmd := app.Command("dump", "Print the token stream of a document.").Action(c.run)
	cmd.Arg("file", "Document to dump.").Required().ExistingFileVar(&c.file)
}

func (c *dumpCommand) run(*kingpin.ParseContext) error {
	return c.env.withDocument(c.file, func(_ *source.Buffer, r *streamfmt.Reader) error {
		out := bufio.NewWriter(c.env.stdout)
		if err := streamfmt.Dump(r, out); err != nil {
			out.Flush()
			return err
		}
		return out.Flush()
	})
}

// fmtCommand rewrites a document in canonical layout.
type fmtCommand struct {
	env    *environment
	file   string
	output string
}

func (c *fmtCommand) Register(app *kingpin.Application, env *environment) {
	c.env = env
	cmd := app.Command("fmt", "Rewrite a document in canonical layout.").Action(c.run)
	cmd.Arg("file", "Document to format.").Required().ExistingFileVar(&c.file)
	cmd.Flag("output", "Write to this file instead of standard output. Compressed per --source.compression.").Short('o').StringVar(&c.output)
}

func (c *fmtCommand) run(*kingpin.ParseContext) error {
	return transcode(c.env, c.file, c.output, c.env.cfg.Format.WriterOptions())
}

// convertCommand re-encodes a document with another code unit width or
// byte order.
type convertCommand struct {
	env       *environment
	file      string
	output    string
	toWidth   string
	bigEndian bool
	raw       bool
}

func (c *convertCommand) Register(app *kingpin.Application, env *environment) {
	c.env = env
	cmd := app.Command("convert", "Re-encode a document with another code unit width or byte order.").Action(c.run)
	cmd.Arg("file", "Document to convert.").Required().ExistingFileVar(&c.file)
	cmd.Flag("to-width", "Code unit width of the output: 8, 16 or 32.").Required().EnumVar(&c.toWidth, "8", "16", "32")
	cmd.Flag("to-big-endian", "Encode the output big-endian.").BoolVar(&c.bigEndian)
	cmd.Flag("raw", "Re-encode the code units as they are, keeping layout and comments.").BoolVar(&c.raw)
	cmd.Flag("output", "Write to this file instead of standard output. Compressed per --source.compression.").Short('o').StringVar(&c.output)
}

func (c *convertCommand) run(*kingpin.ParseContext) error {
	width, _ := streamfmt.ParseWidth(c.toWidth)
	format := c.env.cfg.Format
	if c.raw {
		return c.recode(width)
	}
	opts := []streamfmt.WriterOption{
		streamfmt.WithWriterWidth(width),
		streamfmt.WithWriterTabWidth(format.TabWidth),
		streamfmt.WithLineLength(format.LineLength),
		streamfmt.WithMaxIndent(format.MaxIndent),
	}
	if c.bigEndian {
		opts = append(opts, streamfmt.WithWriterBigEndian())
	}
	return transcode(c.env, c.file, c.output, opts)
}

func (c *convertCommand) recode(width streamfmt.Width) error {
	loader, err := c.env.Loader()
	if err != nil {
		return err
	}
	b, err := loader.Load(c.file)
	if err != nil {
		return err
	}
	defer b.Close()

	format := c.env.cfg.Format
	out, err := streamfmt.Recode(b.Bytes(), format.CodeUnitWidth(), format.BigEndian, width, c.bigEndian)
	if err != nil {
		return err
	}
	if c.output != "" {
		return loader.SaveBytes(c.output, out)
	}
	_, err = c.env.stdout.Write(out)
	return errors.Wrap(err, "write output")
}

func transcode(env *environment, path, output string, opts []streamfmt.WriterOption) error {
	return env.withDocument(path, func(_ *source.Buffer, r *streamfmt.Reader) error {
		if output != "" {
			loader, err := env.Loader()
			if err != nil {
				return err
			}
			return loader.Save(output, func(w *streamfmt.Writer) error {
				return streamfmt.Transcode(r, w)
			}, opts...)
		}

		out := bufio.NewWriter(env.stdout)
		if err := streamfmt.Transcode(r, streamfmt.NewWriter(out, opts...)); err != nil {
			out.Flush()
			return err
		}
		return errors.Wrap(out.Flush(), "write output")
	})
}

// statCommand summarises a document.
type statCommand struct {
	env  *environment
	file string
}

func (c *statCommand) Register(app *kingpin.Application, env *environment) {
	c.env = env
	cmd := app.Command("stat", "Summarise a document.").Action(c.run)
	cmd.Arg("file", "Document to summarise.").Required().ExistingFileVar(&c.file)
}

func (c *statCommand) run(*kingpin.ParseContext) error {
	return c.env.withDocument(c.file, func(b *source.Buffer, r *streamfmt.Reader) error {
		st, err := streamfmt.Validate(r)
		if err != nil {
			return err
		}
		sum, err := streamfmt.CanonicalHash(b.NewReader(c.env.cfg.Format.ReaderOptions()...))
		if err != nil {
			return err
		}

		header := "absent"
		if st.Header.Present {
			header = fmt.Sprintf("Format=%d; Tab=%d", st.Header.Version, st.Header.TabWidth)
		}
		out := c.env.stdout
		fmt.Fprintf(out, "path:        %s\n", b.Path())
		fmt.Fprintf(out, "size:        %s (%d bytes)\n", humanize.IBytes(uint64(b.Len())), b.Len())
		fmt.Fprintf(out, "mapped:      %t\n", b.Mapped())
		fmt.Fprintf(out, "crc32:       %08x\n", b.Checksum())
		fmt.Fprintf(out, "width:       %s\n", c.env.cfg.Format.CodeUnitWidth())
		fmt.Fprintf(out, "header:      %s\n", header)
		fmt.Fprintf(out, "elements:    %s\n", humanize.Comma(int64(st.Elements)))
		fmt.Fprintf(out, "attributes:  %s\n", humanize.Comma(int64(st.Attributes)))
		fmt.Fprintf(out, "max depth:   %d\n", st.MaxDepth)
		fmt.Fprintf(out, "canonical:   %s\n", hex.EncodeToString(sum[:]))
		return nil
	})
}
