// Package cli implements the streamctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wp-stream/stream-api-client/internal/api"
	"github.com/wp-stream/stream-api-client/internal/cache"
	"github.com/wp-stream/stream-api-client/internal/cache/httpcache"
	"github.com/wp-stream/stream-api-client/internal/config"
	"github.com/wp-stream/stream-api-client/internal/credentials"
)

const appName = "streamctl"

// Output formats
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// CLI holds shared state for all commands
type CLI struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	log    *logrus.Logger

	configPath string
	verbose    bool
	output     string

	cfg *config.Config
}

// New creates a CLI reading from in and printing to out and errOut
func New(in io.Reader, out, errOut io.Writer) *CLI {
	log := logrus.New()
	log.SetOutput(errOut)
	return &CLI{
		in:     in,
		out:    out,
		errOut: errOut,
		log:    log,
		output: OutputJSON,
	}
}

// Execute runs streamctl with the process' standard streams
func Execute(ctx context.Context, args []string) error {
	root := New(os.Stdin, os.Stdout, os.Stderr).RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// RootCommand creates the root cobra command with all subcommands registered
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "streamctl talks to the Stream activity log API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", OutputJSON, "output format (json|yaml)")

	root.AddCommand(c.validateKeyCommand())
	root.AddCommand(c.userCommand())
	root.AddCommand(c.recordCommand())
	root.AddCommand(c.recordsCommand())
	root.AddCommand(c.newRecordCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.fakeAPICommand())

	return root
}

// setup loads the configuration and configures logging
func (c *CLI) setup() error {
	switch c.output {
	case OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("unsupported output format: %s", c.output)
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.verbose {
		level = logrus.DebugLevel
	}
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if strings.EqualFold(cfg.Log.Format, "json") {
		formatter = &logrus.JSONFormatter{}
	}

	for _, log := range []*logrus.Logger{c.log, logrus.StandardLogger()} {
		log.SetLevel(level)
		log.SetFormatter(formatter)
		log.SetOutput(c.errOut)
	}

	c.log.WithField("config", c.configPath).Debug("Configuration loaded")
	return nil
}

// newCache builds the configured cache backend. Callers close it.
func (c *CLI) newCache() (cache.Cache, error) {
	backend, err := cache.FromConfig(c.cfg.Cache)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// newClient builds an API client from the loaded configuration
func (c *CLI) newClient(ctx context.Context, backend cache.Cache) (*api.Client, error) {
	creds, err := credentials.FromConfig(c.cfg).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !creds.HasAPIKey() {
		c.log.Warn("No API key configured, requests will likely be rejected")
	}
	c.log.WithFields(logrus.Fields{
		"api_key": creds.Redacted(),
		"site_id": creds.SiteID,
	}).Debug("Credentials loaded")

	timeout, err := c.cfg.GetTimeout()
	if err != nil {
		return nil, err
	}

	return api.New(creds,
		api.WithBaseURL(c.cfg.API.URL),
		api.WithTimeout(timeout),
		api.WithCache(httpcache.New(backend, c.cfg.Cache.Prefix)),
		api.WithNotifier(newTerminalNotifier(c.errOut)),
		api.WithLogger(c.log),
	), nil
}

// call runs fn against a fresh client and prints its result. On failure the
// client's error log is printed before the error is returned.
func (c *CLI) call(ctx context.Context, fn func(ctx context.Context, client *api.Client) (any, error)) error {
	backend, err := c.newCache()
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	client, err := c.newClient(ctx, backend)
	if err != nil {
		return err
	}

	data, err := fn(ctx, client)
	if err != nil {
		printErrorDetails(c.errOut, client.Errors())
		return err
	}
	return c.render(data)
}
