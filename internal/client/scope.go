package client

import (
	"context"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// scope holds data applied to every captured event. Every change is mirrored
// to the native layer so native crashes carry the same context.
type scope struct {
	mu          sync.RWMutex
	tags        map[string]string
	extra       map[string]any
	contexts    map[string]map[string]any
	user        *models.User
	breadcrumbs []models.Breadcrumb
}

func newScope() *scope {
	return &scope{
		tags:     map[string]string{},
		extra:    map[string]any{},
		contexts: map[string]map[string]any{},
	}
}

// SetTag sets a tag on the scope.
func (c *Client) SetTag(ctx context.Context, key, value string) {
	c.scope.mu.Lock()
	c.scope.tags[key] = value
	c.scope.mu.Unlock()
	c.gate.SetTag(ctx, key, value)
}

// SetExtra sets an extra value on the scope.
func (c *Client) SetExtra(ctx context.Context, key string, value any) {
	c.scope.mu.Lock()
	c.scope.extra[key] = value
	c.scope.mu.Unlock()
	c.gate.SetExtra(ctx, key, value)
}

// SetContext sets a named context. A nil value removes it.
func (c *Client) SetContext(ctx context.Context, key string, value map[string]any) {
	c.scope.mu.Lock()
	if value == nil {
		delete(c.scope.contexts, key)
	} else {
		c.scope.contexts[key] = value
	}
	c.scope.mu.Unlock()
	c.gate.SetContext(ctx, key, value)
}

// SetUser sets the current user. A nil user clears it.
func (c *Client) SetUser(ctx context.Context, user *models.User) {
	c.scope.mu.Lock()
	c.scope.user = user
	c.scope.mu.Unlock()

	if user == nil {
		c.gate.SetUser(ctx, nil)
		return
	}
	native := map[string]any{}
	for k, v := range map[string]string{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"ip_address": user.IPAddress,
		"segment":    user.Segment,
	} {
		if v != "" {
			native[k] = v
		}
	}
	for k, v := range user.Data {
		native[k] = v
	}
	c.gate.SetUser(ctx, native)
}

// AddBreadcrumb records a breadcrumb, keeping at most MaxBreadcrumbs.
func (c *Client) AddBreadcrumb(ctx context.Context, crumb models.Breadcrumb) {
	if c.opts.MaxBreadcrumbs <= 0 {
		return
	}
	if crumb.Timestamp == 0 {
		crumb.Timestamp = models.TimestampSeconds(c.now())
	}
	if c.opts.BeforeBreadcrumb != nil {
		processed := c.opts.BeforeBreadcrumb(crumb)
		if processed == nil {
			return
		}
		crumb = *processed
	}

	c.scope.mu.Lock()
	c.scope.breadcrumbs = append(c.scope.breadcrumbs, crumb)
	if over := len(c.scope.breadcrumbs) - c.opts.MaxBreadcrumbs; over > 0 {
		c.scope.breadcrumbs = append([]models.Breadcrumb(nil), c.scope.breadcrumbs[over:]...)
	}
	c.scope.mu.Unlock()

	c.gate.AddBreadcrumb(ctx, crumb)
}

// ClearBreadcrumbs removes every breadcrumb.
func (c *Client) ClearBreadcrumbs(ctx context.Context) {
	c.scope.mu.Lock()
	c.scope.breadcrumbs = nil
	c.scope.mu.Unlock()
	c.gate.ClearBreadcrumbs(ctx)
}

// apply copies scope data into event. Values already on the event win.
func (s *scope) apply(event *models.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.tags) > 0 {
		tags := make(map[string]string, len(s.tags)+len(event.Tags))
		for k, v := range s.tags {
			tags[k] = v
		}
		for k, v := range event.Tags {
			tags[k] = v
		}
		event.Tags = tags
	}
	if len(s.extra) > 0 {
		extra := make(map[string]any, len(s.extra)+len(event.Extra))
		for k, v := range s.extra {
			extra[k] = v
		}
		for k, v := range event.Extra {
			extra[k] = v
		}
		event.Extra = extra
	}
	if len(s.contexts) > 0 {
		contexts := make(map[string]map[string]any, len(s.contexts)+len(event.Contexts))
		for k, v := range s.contexts {
			contexts[k] = v
		}
		for k, v := range event.Contexts {
			contexts[k] = v
		}
		event.Contexts = contexts
	}
	if event.User == nil && s.user != nil {
		user := *s.user
		event.User = &user
	}
	if len(s.breadcrumbs) > 0 {
		event.Breadcrumbs = append(append([]models.Breadcrumb(nil), s.breadcrumbs...), event.Breadcrumbs...)
	}
}

func (c *Client) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
