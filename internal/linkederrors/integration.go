package linkederrors

import (
	"context"

	"github.com/telhawk-systems/telhawk-beacon/internal/metrics"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// Integration appends linked errors to events before they are sent.
type Integration struct {
	walker *Walker
	key    string
	limit  int
}

// NewIntegration creates the integration. An empty key or a non-positive limit
// fall back to DefaultKey and DefaultLimit.
func NewIntegration(walker *Walker, key string, limit int) *Integration {
	if key == "" {
		key = DefaultKey
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Integration{walker: walker, key: key, limit: limit}
}

func (i *Integration) Name() string {
	return "native_linked_errors"
}

// Preprocess runs only for events that already carry exceptions and whose hint
// holds the original Go error.
func (i *Integration) Preprocess(ctx context.Context, event *models.Event, hint *models.EventHint) {
	if event == nil || len(event.Exceptions()) == 0 || hint == nil {
		return
	}
	root, ok := hint.OriginalException.(error)
	if !ok {
		return
	}

	chain := i.walker.Walk(ctx, root, i.key, i.limit)
	metrics.LinkedErrorChainLength.Observe(float64(len(chain.Exceptions)))

	event.Exception.Values = append(event.Exception.Values, chain.Exceptions...)
	event.AddDebugImages(chain.DebugImages...)
}
