package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/ema/internal/queue"
	"github.com/your-org/ema/pkg/dto"
)

func (a *app) eventsCmd() *cobra.Command {
	var (
		durable string
		types   []string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow catalog events published to NATS",
		Long: `Print catalog events from the CATALOG stream as JSON lines until
interrupted. With --durable the consumer resumes where it left off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return fmt.Errorf("nats.url is not configured")
			}

			sub, err := queue.NewSubscriber(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(a.out)
			err = sub.Consume(ctx, durable, func(_ context.Context, ev *dto.WSEvent) error {
				return enc.Encode(ev)
			}, types...)
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&durable, "durable", "", "durable consumer name")
	cmd.Flags().StringSliceVar(&types, "type", nil, "event type to follow (repeatable)")
	return cmd
}
