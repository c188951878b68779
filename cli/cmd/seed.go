package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/internal/seeder"
	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
)

func newSeedCmd(a *app) *cobra.Command {
	var (
		cfg   seeder.Config
		seed  int64
		depth int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Send synthetic crashes and errors",
		Long: `Generate realistic crash, error and message events and send them
through the relay. Crashes carry native error chains so the linked-error
walk and hard-crash routing are exercised.`,
		Example: `  beacon seed --count 100 --crash-ratio 0.3
  beacon seed --count 20 --interval 500ms --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.CrashRatio < 0 || cfg.MessageRatio < 0 || cfg.CrashRatio+cfg.MessageRatio > 1 {
				return fmt.Errorf("crash and message ratios must be non-negative and sum to at most 1")
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
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
			defer c.Close(ctx)

			generator := seeder.NewGenerator(seed, a.cfg.Client.Platform, a.cfg.Relay.PackageName, depth)
			stats, err := seeder.NewRunner(cfg, generator, c, a.logger).Run(ctx)
			if err != nil {
				return err
			}

			p := a.printer(cmd)
			if a.format() != output.FormatTable {
				return p.Structured(a.format(), stats)
			}
			table := output.NewTable([]string{"SENT", "DROPPED", "CRASHES", "SEED"})
			table.AddRow([]string{
				strconv.Itoa(stats.Sent),
				strconv.Itoa(stats.Dropped),
				strconv.Itoa(stats.Crashes),
				strconv.FormatInt(seed, 10),
			})
			table.Render(p.Out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&cfg.Count, "count", "n", 10, "number of events to send")
	cmd.Flags().Float64Var(&cfg.CrashRatio, "crash-ratio", 0.2, "share of events that are unhandled crashes")
	cmd.Flags().Float64Var(&cfg.MessageRatio, "message-ratio", 0.2, "share of events that are plain messages")
	cmd.Flags().DurationVar(&cfg.Interval, "interval", 0, "pause between events")
	cmd.Flags().DurationVar(&cfg.TimeSpread, "time-spread", 0, "spread event timestamps over this window before now")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: current time)")
	cmd.Flags().IntVar(&depth, "depth", 3, "maximum linked cause depth of generated crashes")
	return cmd
}
