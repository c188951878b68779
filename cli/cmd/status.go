package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-beacon/common/messaging"
	beaconnats "github.com/telhawk-systems/telhawk-beacon/common/messaging/nats"
	"github.com/telhawk-systems/telhawk-beacon/internal/relay"
)

type componentStatus struct {
	Component string `json:"component" yaml:"component"`
	Target    string `json:"target" yaml:"target"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	LatencyMs int64  `json:"latency_ms" yaml:"latency_ms"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the relay's NATS and Redis connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := a.cfg.Relay.Timeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			statuses := []componentStatus{
				a.natsStatus(ctx),
				a.redisStatus(ctx),
			}

			p := a.printer(cmd)
			if a.format() != output.FormatTable {
				return p.Structured(a.format(), statuses)
			}
			table := output.NewTable([]string{"COMPONENT", "TARGET", "STATUS", "LATENCY", "ERROR"})
			for _, s := range statuses {
				state := "down"
				if s.Healthy {
					state = "up"
				}
				table.AddRow([]string{s.Component, s.Target, state, (time.Duration(s.LatencyMs) * time.Millisecond).String(), s.Error})
			}
			table.Render(p.Out)
			return nil
		},
	}
}

func (a *app) natsStatus(ctx context.Context) componentStatus {
	s := componentStatus{Component: "nats", Target: a.cfg.Relay.NATSURL}
	natsCfg := a.natsConfig()
	natsCfg.MaxReconnects = 0
	c, err := beaconnats.NewClient(natsCfg)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	defer c.Close()

	health := messaging.CheckClientHealth(ctx, c)
	s.Healthy = health.Connected && health.Error == ""
	s.LatencyMs = health.Latency.Milliseconds()
	s.Error = health.Error
	return s
}

func (a *app) redisStatus(ctx context.Context) componentStatus {
	s := componentStatus{Component: "redis", Target: a.cfg.Relay.RedisURL}
	start := time.Now()
	store, err := relay.NewStore(ctx, a.cfg.Relay.RedisURL, relay.DefaultKeyPrefix)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	defer store.Close()
	s.Healthy = true
	s.LatencyMs = time.Since(start).Milliseconds()
	return s
}
