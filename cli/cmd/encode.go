package cmd

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/client"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

func newEncodeCmd(a *app) *cobra.Command {
	var (
		eventFile   string
		message     string
		level       string
		attachments []string
		contentType string
		asBase64    bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode an event into an envelope",
		Long:  "Build an envelope from an event and print it in wire format, raw or base64 encoded as handed to the native layer",
		Example: `  beacon encode --event crash.json > crash.envelope
  beacon encode --message "checkout failed" --attachment screenshot.png --base64`,
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := loadEvent(cmd.InOrStdin(), eventFile, message, level)
			if err != nil {
				return err
			}
			files, err := loadAttachments(attachments, contentType)
			if err != nil {
				return err
			}

			sdk := &models.SdkInfo{Name: client.SDKName, Version: client.SDKVersion}
			env := envelope.NewEventEnvelope(event, sdk, time.Now())
			for _, file := range files {
				env.AppendItem(envelope.NewAttachmentItem(file))
			}

			encoded, err := envelope.Encode(env)
			if err != nil {
				return err
			}
			a.logger.Debug("envelope encoded",
				logging.EventID(event.EventID),
				logging.Bytes(len(encoded.Bytes)),
				"hard_crashed", encoded.HardCrashed,
			)

			out := cmd.OutOrStdout()
			if asBase64 {
				_, err = fmt.Fprintln(out, base64.StdEncoding.EncodeToString(encoded.Bytes))
				return err
			}
			_, err = out.Write(encoded.Bytes)
			return err
		},
	}

	cmd.Flags().StringVarP(&eventFile, "event", "e", "", "event JSON file (- for stdin)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "capture a plain message instead of an event file")
	cmd.Flags().StringVar(&level, "level", "", "event level: debug, info, warning, error, fatal")
	cmd.Flags().StringSliceVarP(&attachments, "attachment", "a", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type for attachments (default: guessed from extension)")
	cmd.Flags().BoolVar(&asBase64, "base64", false, "print the envelope base64 encoded")
	return cmd
}
