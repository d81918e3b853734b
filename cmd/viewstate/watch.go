package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/goliatone/go-viewstate/pkg/kv"
	"github.com/spf13/cobra"
)

func (a *app) watchCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print storage keys as the settings file changes on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, ok := a.storage.(*kv.File)
			if !ok {
				return fmt.Errorf("%w: %T", errNotWatchable, a.storage)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			changes, err := file.Watch(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "watching %s\n", file.Path())
			for keys := range changes {
				fmt.Fprintln(a.out, strings.Join(keys, " "))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (0 waits for interrupt)")
	return cmd
}
