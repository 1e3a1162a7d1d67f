package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Neumenon/streamfmt/source"
	"github.com/Neumenon/streamfmt/streamfmt"
)

const (
	version          = "1.0.0"
	configFileOption = "config.file"
)

// Config is the YAML shape accepted by --config.file.
type Config struct {
	Format streamfmt.Config `yaml:"format"`
	Source source.Config    `yaml:"source"`
}

// RegisterFlags registers every config flag with its default.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Format.RegisterFlags(f)
	c.Source.RegisterFlags(f)
}

// Validate checks every section of the config.
func (c *Config) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return errors.Wrap(err, "invalid format config")
	}
	if err := c.Source.Validate(); err != nil {
		return errors.Wrap(err, "invalid source config")
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var cfg Config

	// Defaults come from the flag set and must be in place before the
	// config file is decoded over them.
	fs := flag.NewFlagSet("streamfmt", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	if configFile := parseConfigFileParameter(args); configFile != "" {
		if err := LoadConfig(configFile, &cfg); err != nil {
			fmt.Fprintf(stderr, "error loading config from %s: %v\n", configFile, err)
			return 1
		}
	}

	app := kingpin.New("streamfmt", "Check, inspect and convert indentation-delimited streamfmt documents.")
	app.UsageWriter(stdout).ErrorWriter(stderr)
	app.Terminate(nil)
	app.Flag(configFileOption, "Configuration file to load.").String()
	registerFlagSet(app, fs)

	var logCfg loggerConfig
	logCfg.Register(app, stderr)

	env := &environment{cfg: &cfg, log: &logCfg, stdout: stdout}
	var (
		check   checkCommand
		dump    dumpCommand
		format  fmtCommand
		convert convertCommand
		stat    statCommand
	)
	check.Register(app, env)
	dump.Register(app, env)
	format.Register(app, env)
	convert.Register(app, env)
	stat.Register(app, env)

	app.Command("version", "Print the version of the streamfmt CLI.").Action(func(*kingpin.ParseContext) error {
		fmt.Fprintf(stdout, "streamfmt version %s (format version %d)\n", version, streamfmt.FormatVersion)
		return nil
	})

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(stderr, "streamfmt: %v\n", err)
		return 1
	}
	return 0
}

// registerFlagSet exposes every flag of fs through app. The flag.Value is
// shared, so values already loaded from the config file act as defaults.
func registerFlagSet(app *kingpin.Application, fs *flag.FlagSet) {
	fs.VisitAll(func(f *flag.Flag) {
		app.Flag(f.Name, f.Usage).Default(f.Value.String()).SetValue(f.Value)
	})
}

// parseConfigFileParameter finds --config.file before the full command
// line is parsed. Unknown flags are skipped.
func parseConfigFileParameter(args []string) (configFile string) {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")

	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}
	return
}

// LoadConfig reads a YAML config from filename into cfg. Unknown fields are
// an error.
func LoadConfig(filename string, cfg *Config) error {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "Error reading config file")
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "Error parsing config file")
	}
	return nil
}
