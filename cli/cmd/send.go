package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		eventFile   string
		message     string
		level       string
		attachments []string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an event through the relay",
		Long:  "Capture an event with a client backed by the relay module, publishing its envelope to NATS JetStream",
		Example: `  beacon send --event crash.json
  beacon send --message "login failed" --level warning --attachment app.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := loadEvent(cmd.InOrStdin(), eventFile, message, level)
			if err != nil {
				return err
			}
			files, err := loadAttachments(attachments, contentType)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			conn, err := a.connectRelay(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			c, err := a.startClient(ctx, conn)
			if err != nil {
				return err
			}

			id := c.CaptureEvent(ctx, event, &models.EventHint{OriginalException: event.Message, Attachments: files})
			if err := c.Close(ctx); err != nil {
				return err
			}

			p := a.printer(cmd)
			if id == "" {
				p.Warn("Event was dropped before delivery")
				return nil
			}
			if a.format() != output.FormatTable {
				return p.Structured(a.format(), map[string]string{"event_id": id})
			}
			p.Success("Sent event %s", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventFile, "event", "e", "", "event JSON file (- for stdin)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "capture a plain message instead of an event file")
	cmd.Flags().StringVar(&level, "level", "", "event level: debug, info, warning, error, fatal")
	cmd.Flags().StringSliceVarP(&attachments, "attachment", "a", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type for attachments (default: guessed from extension)")
	return cmd
}
