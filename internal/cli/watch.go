package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wp-stream/stream-api-client/internal/api"
	"github.com/wp-stream/stream-api-client/internal/cache"
)

const defaultWatchSchedule = "@every 30s"

func (c *CLI) watchCommand() *cobra.Command {
	var (
		schedule string
		fields   []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the site's records and print new ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := c.newCache()
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			return c.watch(cmd.Context(), backend, schedule, fields)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", defaultWatchSchedule, "cron spec of the polling schedule")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "comma-separated fields to return")
	return cmd
}

// watcher remembers which records were already printed. Each poll uses its
// own client so error logs do not outlive the poll.
type watcher struct {
	cli     *CLI
	backend cache.Cache
	fields  []string

	mu   sync.Mutex
	seen map[string]bool
}

// watch polls once right away, then on schedule until ctx is done
func (c *CLI) watch(ctx context.Context, backend cache.Cache, schedule string, fields []string) error {
	client, err := c.newClient(ctx, backend)
	if err != nil {
		return err
	}
	if !client.HasSiteID() {
		return api.ErrMissingSiteID
	}

	w := &watcher{
		cli:     c,
		backend: backend,
		fields:  fields,
		seen:    make(map[string]bool),
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, func() { w.poll(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	w.poll(ctx)

	scheduler.Start()
	c.log.WithField("schedule", schedule).Info("Watching records")
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func (w *watcher) poll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	client, err := w.cli.newClient(ctx, w.backend)
	if err != nil {
		w.cli.log.WithError(err).Error("Failed to create client")
		return
	}

	data, err := client.GetRecords(ctx, w.fields, api.WithCaching(false))
	if err != nil {
		if ctx.Err() == nil {
			printErrorDetails(w.cli.errOut, client.Errors())
		}
		return
	}

	records, ok := data.([]any)
	if !ok {
		w.cli.log.Warnf("Unexpected records response of type %T", data)
		return
	}

	for _, rec := range records {
		key := recordKey(rec)
		if w.seen[key] {
			continue
		}
		w.seen[key] = true
		if err := w.cli.render(rec); err != nil {
			w.cli.log.WithError(err).Error("Failed to print record")
		}
	}
}

// recordKey identifies a record by its id, or by its content without one
func recordKey(rec any) string {
	if m, ok := rec.(map[string]any); ok {
		if id, ok := m["id"]; ok {
			return fmt.Sprint(id)
		}
	}
	return fmt.Sprintf("%v", rec)
}
