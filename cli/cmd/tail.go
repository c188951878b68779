package cmd

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-beacon/common/messaging"
	beaconnats "github.com/telhawk-systems/telhawk-beacon/common/messaging/nats"
)

func newTailCmd(a *app) *cobra.Command {
	var (
		durable     string
		crashesOnly bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow envelopes published by the relay",
		Long:  "Consume envelopes from the JetStream stream with a durable consumer and print one line per envelope",
		Example: `  beacon tail --crashes-only
  beacon tail --limit 5 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			js, err := beaconnats.NewJetStreamClient(a.natsConfig())
			if err != nil {
				return err
			}
			defer js.Close()

			stream := beaconnats.EnvelopesStream(a.cfg.Relay.Stream, a.cfg.Relay.SubjectPrefix)
			if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
				return err
			}

			filter := messaging.EnvelopeSubjects(a.cfg.Relay.SubjectPrefix)
			if crashesOnly {
				filter = messaging.EnvelopeSubject(a.cfg.Relay.SubjectPrefix, true)
			}
			if _, err := js.CreateOrUpdateConsumer(ctx, stream.Name, beaconnats.DefaultConsumerConfig(durable, filter)); err != nil {
				return err
			}

			p := a.printer(cmd)
			format := a.format()
			var (
				mu   sync.Mutex
				seen int
			)
			stop, err := js.ConsumeMessages(ctx, stream.Name, durable, func(_ context.Context, msg *messaging.Message) error {
				decoded, err := decodeEnvelope(msg.Data)
				if err != nil {
					// Malformed envelopes are acknowledged and skipped.
					p.Error("%s: %v", msg.Subject, err)
					return nil
				}

				mu.Lock()
				defer mu.Unlock()
				if limit > 0 && seen >= limit {
					return nil
				}
				seen++
				printTailLine(p, format, msg, decoded)
				if limit > 0 && seen >= limit {
					cancel()
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer stop()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&durable, "durable", "beacon-tail", "durable consumer name")
	cmd.Flags().BoolVar(&crashesOnly, "crashes-only", false, "only follow hard crashes")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many envelopes (0 follows until interrupted)")
	return cmd
}

func printTailLine(p *output.Printer, format output.Format, msg *messaging.Message, decoded *decodedEnvelope) {
	if format != output.FormatTable {
		_ = p.Structured(format, decoded)
		return
	}
	types := make([]string, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		types = append(types, item.Type)
	}
	line := strings.Join([]string{
		msg.Timestamp.Format("15:04:05"),
		msg.Subject,
		msg.Metadata[messaging.HeaderEventID],
		strings.Join(types, ","),
	}, "  ")
	if decoded.HardCrashed {
		p.Warn("%s", line)
		return
	}
	p.Info("%s", line)
}
