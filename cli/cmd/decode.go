package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/outcome"
)

// decodedEnvelope is the structured view printed by decode and tail.
type decodedEnvelope struct {
	Header      envelope.Header `json:"header" yaml:"header"`
	HardCrashed bool            `json:"hard_crashed" yaml:"hard_crashed"`
	Items       []decodedItem   `json:"items" yaml:"items"`
}

type decodedItem struct {
	Type        string `json:"type" yaml:"type"`
	ContentType string `json:"content_type" yaml:"content_type"`
	Length      int    `json:"length" yaml:"length"`
	Filename    string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Summary     string `json:"summary,omitempty" yaml:"summary,omitempty"`
	// Payload is decoded JSON, text, or base64 for binary items.
	Payload any `json:"payload" yaml:"payload"`
}

func newDecodeCmd(a *app) *cobra.Command {
	var fromBase64 bool

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode an envelope and list its items",
		Long:  "Parse a serialized envelope and print its items as a table, JSON or YAML",
		Example: `  beacon decode crash.envelope
  beacon encode --message hi --base64 | beacon decode --base64 -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) > 0 {
				path = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return fmt.Errorf("failed to read envelope: %w", err)
			}
			if fromBase64 {
				data, err = base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data)))
				if err != nil {
					return fmt.Errorf("failed to decode base64: %w", err)
				}
			}

			decoded, err := decodeEnvelope(data)
			if err != nil {
				return err
			}
			return printEnvelope(a.printer(cmd), a.format(), decoded)
		},
	}

	cmd.Flags().BoolVar(&fromBase64, "base64", false, "input is base64 encoded")
	return cmd
}

func decodeEnvelope(data []byte) (*decodedEnvelope, error) {
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}

	decoded := &decodedEnvelope{Header: env.Header, Items: make([]decodedItem, 0, len(env.Items))}
	for _, item := range env.Items {
		payload, _ := item.Payload.([]byte)
		di := decodedItem{
			Type:        item.Header.Type(),
			ContentType: item.Header.ContentType(),
			Length:      len(payload),
		}
		di.Filename, _ = item.Header["filename"].(string)

		switch {
		case di.ContentType == envelope.ContentTypeJSON:
			var v any
			if err := json.Unmarshal(payload, &v); err != nil {
				return nil, fmt.Errorf("item %s carries invalid JSON: %w", di.Type, err)
			}
			di.Payload = v
			di.Summary = summarize(di.Type, payload)
			if envelope.IsHardCrash(payload) {
				decoded.HardCrashed = true
			}
		case strings.HasPrefix(di.ContentType, "text/"):
			di.Payload = string(payload)
		default:
			di.Payload = base64.StdEncoding.EncodeToString(payload)
		}
		decoded.Items = append(decoded.Items, di)
	}
	return decoded, nil
}

// summarize describes a JSON item in one line.
func summarize(itemType string, payload []byte) string {
	switch itemType {
	case envelope.ItemTypeEvent, envelope.ItemTypeTransaction:
		var event models.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return ""
		}
		if exceptions := event.Exceptions(); len(exceptions) > 0 {
			return fmt.Sprintf("%s: %s", exceptions[0].Type, exceptions[0].Value)
		}
		if msg, ok := event.Message.(string); ok {
			return msg
		}
		return event.Transaction
	case envelope.ItemTypeClientReport:
		var report outcome.ClientReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return ""
		}
		return fmt.Sprintf("%d discarded in %d outcomes", outcome.Total(report.DiscardedEvents), len(report.DiscardedEvents))
	case envelope.ItemTypeUserReport:
		var feedback models.UserFeedback
		if err := json.Unmarshal(payload, &feedback); err != nil {
			return ""
		}
		return feedback.Comments
	}
	return ""
}

func printEnvelope(p *output.Printer, format output.Format, decoded *decodedEnvelope) error {
	if format != output.FormatTable {
		return p.Structured(format, decoded)
	}

	eventID, _ := decoded.Header["event_id"].(string)
	p.Info("Envelope %s (%d items, hard crash: %t)", eventID, len(decoded.Items), decoded.HardCrashed)

	table := output.NewTable([]string{"#", "TYPE", "CONTENT TYPE", "LENGTH", "DETAIL"})
	for i, item := range decoded.Items {
		detail := item.Summary
		if detail == "" {
			detail = item.Filename
		}
		table.AddRow([]string{strconv.Itoa(i), item.Type, item.ContentType, strconv.Itoa(item.Length), detail})
	}
	table.Render(p.Out)
	return nil
}
