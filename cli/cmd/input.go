package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// loadEvent reads an event from eventFile or builds one from message.
func loadEvent(stdin io.Reader, eventFile, message, level string) (*models.Event, error) {
	var event *models.Event
	switch {
	case eventFile != "":
		data, err := readInput(stdin, eventFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		event = &models.Event{}
		if err := json.Unmarshal(data, event); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		if event.EventID == "" {
			event.EventID = models.NewEventID()
		}
		if event.Timestamp == 0 {
			event.Timestamp = models.NewEvent().Timestamp
		}
	case message != "":
		event = models.NewEvent()
		event.Message = message
	default:
		return nil, errors.New("either --event or --message is required")
	}

	if level != "" {
		event.Level = models.Level(level)
	}
	return event, nil
}

// loadAttachments reads attachment files. The content type is guessed from
// the extension unless contentType is set.
func loadAttachments(paths []string, contentType string) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		ct := contentType
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(path))
		}
		attachments = append(attachments, models.Attachment{
			Filename:    filepath.Base(path),
			ContentType: ct,
			Data:        data,
		})
	}
	return attachments, nil
}
