package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/profclems/catchhook/client"
	"github.com/profclems/catchhook/render"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print captured requests in the terminal as they arrive",
		Long: `Poll a capture server and print the request list whenever it changes.

Usage:
  catchhook watch
  catchhook watch --select 42
  catchhook watch --once --server https://hooks.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newRemoteAPI()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ctrl := client.NewController(api,
				client.WithInterval(viper.GetDuration("interval")),
				client.WithLogger(logger),
			)

			out := cmd.OutOrStdout()
			selectID := viper.GetUint64("select")

			if viper.GetBool("once") {
				return watchOnce(ctx, ctrl, out, selectID, api.BaseURL())
			}

			p := &snapshotPrinter{w: out, source: api.BaseURL()}
			unsubscribe := ctrl.Subscribe(p.print)
			defer unsubscribe()

			if selectID != 0 {
				if _, err := ctrl.Select(ctx, selectID); err != nil {
					return fmt.Errorf("failed to load request %d: %w", selectID, err)
				}
			}

			if err := ctrl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	addRemoteFlags(cmd)
	cmd.Flags().Uint64("select", 0, "Also print the detail of this request id")
	cmd.Flags().Bool("once", false, "Print a single snapshot and exit")

	return cmd
}

func watchOnce(ctx context.Context, ctrl *client.Controller, w io.Writer, selectID uint64, source string) error {
	if err := ctrl.Refresh(ctx, client.TriggerManual); err != nil {
		return err
	}
	if selectID != 0 {
		if _, err := ctrl.Select(ctx, selectID); err != nil {
			return fmt.Errorf("failed to load request %d: %w", selectID, err)
		}
	}
	return writeSnapshot(w, ctrl.Snapshot(), source)
}

// snapshotPrinter prints a snapshot whenever the list or selection changes.
// Polling state changes alone are not printed.
type snapshotPrinter struct {
	mu           sync.Mutex
	w            io.Writer
	source       string
	lastUpdated  time.Time
	lastSelected uint64
}

func (p *snapshotPrinter) print(snap client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var selected uint64
	if snap.Selected != nil {
		selected = snap.Selected.ID
	}
	if snap.UpdatedAt.Equal(p.lastUpdated) && selected == p.lastSelected {
		return
	}
	p.lastUpdated = snap.UpdatedAt
	p.lastSelected = selected

	if err := writeSnapshot(p.w, snap, p.source); err != nil {
		logger.Error("failed to print requests", "error", err)
	}
	fmt.Fprintln(p.w)
}

func writeSnapshot(w io.Writer, snap client.Snapshot, source string) error {
	view := render.ListView{Requests: snap.Requests, Now: time.Now()}
	if snap.Selected != nil {
		view.Selected = snap.Selected.ID
	}
	return render.TextSnapshot(w, view, snap.Selected, source)
}
