package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

type auditConsumer interface {
	Run(ctx context.Context, h kafka.Handler) error
	Close() error
}

// newAuditConsumer is replaced in tests.
var newAuditConsumer = func(cfg kafka.ConsumerConfig, log logging.Logger) (auditConsumer, error) {
	c, err := kafka.NewConsumer(cfg, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newAuditCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read chat audit events from Kafka",
	}
	cmd.AddCommand(newAuditTailCmd(opts))
	return cmd
}

func newAuditTailCmd(opts *RootOptions) *cobra.Command {
	var (
		group     string
		fromStart bool
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print chat.completed events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if len(cfg.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka.brokers is not configured")
			}
			log, err := newLogger(cfg.Log, true)
			if err != nil {
				return err
			}

			cc := kafka.ConsumerConfig{
				Brokers:     cfg.Kafka.Brokers,
				GroupID:     group,
				Topic:       cfg.Kafka.Topic,
				StartOffset: kafka.OffsetLatest,
			}
			if fromStart {
				cc.StartOffset = kafka.OffsetEarliest
			}
			consumer, err := newAuditConsumer(cc, log)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			seen := 0
			return consumer.Run(ctx, func(_ context.Context, env *kafka.EventEnvelope) error {
				if asJSON {
					if err := printJSON(cmd, env); err != nil {
						return err
					}
				} else {
					printAuditEvent(cmd, env)
				}
				seen++
				if limit > 0 && seen >= limit {
					cancel()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "molsearch-audit", "consumer group id")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read from the earliest retained offset")
	cmd.Flags().IntVar(&limit, "max", 0, "stop after this many events (0 = follow)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw event envelopes")
	return cmd
}

func printAuditEvent(cmd *cobra.Command, env *kafka.EventEnvelope) {
	out := cmd.OutOrStdout()
	ts := env.Timestamp.UTC().Format(time.RFC3339)
	if env.EventType != kafka.EventChatCompleted {
		fmt.Fprintf(out, "%s %s %s\n", ts, env.EventType, env.EventID)
		return
	}
	var p kafka.ChatCompletedPayload
	if err := env.DecodePayload(&p); err != nil {
		fmt.Fprintf(out, "%s %s undecodable payload: %v\n", ts, env.EventType, err)
		return
	}
	fmt.Fprintf(out, "%s %s session=%s chunks=%d replaced=%d prompt_chars=%d duration=%dms",
		ts, p.Status, p.SessionID, p.Chunks, p.Replaced, p.PromptChars, p.DurationMs)
	if p.SMILES != "" {
		fmt.Fprintf(out, " smiles=%s", p.SMILES)
	}
	fmt.Fprintln(out)
}
