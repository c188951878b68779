package bridge

import (
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

const platformAndroid = "android"

// ProcessItem adapts an item for the native layer before encoding. Event and
// transaction payloads are copied; the caller's event is never modified.
func (g *Gate) ProcessItem(item envelope.Item) envelope.Item {
	switch item.Header.Type() {
	case envelope.ItemTypeEvent, envelope.ItemTypeTransaction:
	default:
		return item
	}

	event, ok := item.Payload.(*models.Event)
	if !ok || event == nil {
		return item
	}

	processed := *event
	processed.Level = nativeLevel(event.Level)
	if len(event.Breadcrumbs) > 0 {
		processed.Breadcrumbs = make([]models.Breadcrumb, len(event.Breadcrumbs))
		for i, crumb := range event.Breadcrumbs {
			crumb.Level = nativeLevel(crumb.Level)
			processed.Breadcrumbs[i] = crumb
		}
	}

	if g.platform == platformAndroid {
		if msg, ok := event.Message.(string); ok {
			processed.Message = map[string]string{"message": msg}
		}
	}

	return envelope.Item{Header: item.Header, Payload: &processed}
}

// ProcessEnvelope returns a copy of env with every item processed.
func (g *Gate) ProcessEnvelope(env *envelope.Envelope) *envelope.Envelope {
	out := envelope.New(env.Header)
	for _, item := range env.Items {
		out.AppendItem(g.ProcessItem(item))
	}
	return out
}

func nativeLevel(level models.Level) models.Level {
	if level == models.LevelLog {
		return models.LevelDebug
	}
	return level
}
