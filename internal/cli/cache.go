package cli

import (
	"github.com/spf13/cobra"

	"github.com/wp-stream/stream-api-client/internal/config"
)

// cacheCommand creates the cache management command
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the API response cache",
	}
	cmd.AddCommand(c.cacheClearCommand())
	return cmd
}

func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached API responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := c.newCache()
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			if err := backend.Clear(cmd.Context()); err != nil {
				return err
			}

			printSuccess(c.errOut, "Cleared %s cache", c.cfg.Cache.Backend)
			if c.cfg.Cache.Backend == config.BackendDisk {
				printDetail(c.errOut, "Directory: %s", c.cfg.Cache.Folder)
			}
			return nil
		},
	}
}
