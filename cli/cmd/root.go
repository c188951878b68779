// Package cmd implements the beacon command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-beacon/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/client"
	"github.com/telhawk-systems/telhawk-beacon/internal/config"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile   string
	outputFmt string
	cfg       *config.Config
	logger    *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "beacon",
		Short: "TelHawk Beacon CLI",
		Long: `beacon builds, inspects and delivers crash telemetry envelopes.

Encode events into the envelope wire format, decode captured envelopes,
and send events or synthetic crashes through the relay to NATS JetStream.`,
		Version:       client.SDKVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := output.ParseFormat(a.outputFmt); err != nil {
				return err
			}
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
			logging.SetDefault(a.logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./beacon.yaml or /etc/telhawk/beacon/beacon.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.outputFmt, "output", "o", "table", "output format: table, json, yaml")

	rootCmd.AddCommand(
		newEncodeCmd(a),
		newDecodeCmd(a),
		newSendCmd(a),
		newSeedCmd(a),
		newTailCmd(a),
		newStatusCmd(a),
	)
	return rootCmd
}

// Execute runs the beacon command line.
func Execute() error {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output.New(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr()).Error("%v", err)
		return err
	}
	return nil
}

func (a *app) printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func (a *app) format() output.Format {
	f, _ := output.ParseFormat(a.outputFmt)
	return f
}
