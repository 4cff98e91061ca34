package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wp-stream/stream-api-client/internal/api"
)

// readFlags are shared by commands issuing cacheable GETs
type readFlags struct {
	noCache bool
	ttl     time.Duration
	fields  []string
}

func (f *readFlags) register(cmd *cobra.Command, withFields bool) {
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().DurationVar(&f.ttl, "ttl", 0, "cache lifetime of the response (default: per endpoint)")
	if withFields {
		cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "comma-separated fields to return")
	}
}

func (f *readFlags) options() []api.CallOption {
	opts := []api.CallOption{api.WithCaching(!f.noCache)}
	if f.ttl > 0 {
		opts = append(opts, api.WithTTL(f.ttl))
	}
	return opts
}

func (c *CLI) validateKeyCommand() *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "validate-key",
		Short: "Check that the configured API key is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), func(ctx context.Context, client *api.Client) (any, error) {
				return client.ValidateKey(ctx, flags.options()...)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (c *CLI) userCommand() *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "user <id>",
		Short: "Fetch a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			return c.call(cmd.Context(), func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetUser(ctx, id, flags.options()...)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (c *CLI) recordCommand() *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "record <id>",
		Short: "Fetch one record of the configured site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetRecord(ctx, args[0], flags.fields, flags.options()...)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (c *CLI) recordsCommand() *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List the records of the configured site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetRecords(ctx, flags.fields, flags.options()...)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (c *CLI) newRecordCommand() *cobra.Command {
	var (
		data   string
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "new-record",
		Short: "Create a record from a JSON object",
		Long:  "Create a record for the configured site. The record is read from --data, or from stdin when --data is empty.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.readRecord(data)
			if err != nil {
				return err
			}
			return c.call(cmd.Context(), func(ctx context.Context, client *api.Client) (any, error) {
				return client.NewRecord(ctx, record, fields)
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "record as a JSON object")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "comma-separated fields to return")
	return cmd
}

func (c *CLI) readRecord(data string) (map[string]any, error) {
	raw := []byte(data)
	if strings.TrimSpace(data) == "" {
		b, err := io.ReadAll(c.in)
		if err != nil {
			return nil, fmt.Errorf("reading record from stdin: %w", err)
		}
		raw = b
	}

	var record map[string]any
	if err := api.DecodeJSON(raw, &record); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return record, nil
}
