// File: cmd/xsksim/main.go
// xsksim is a simulation harness for the XSK datapath core, playing
// the role the IOCTL transport and a real NIC miniport play in the
// kernel driver: it drives the RX/TX pipelines against an in-memory
// interface (xdpif/sim) so the datapath's properties can be exercised
// and observed without any kernel or hardware dependency.
//
// Grounded on the pack's proxy CLIs (e.g. proxy-nlb/cmd/nlb/main.go):
// a cobra root command loading config via viper, structured logging
// via logrus, and subcommands for discrete operations.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/winxdp/xsk/api"
	"github.com/winxdp/xsk/control"
	"github.com/winxdp/xsk/xdpif/sim"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var configPath string
	var logLevel string
	var disableTxBounce bool
	var rxZeroCopy bool

	reg := control.NewRegistry()

	rootCmd := &cobra.Command{
		Use:   "xsksim",
		Short: "XSK datapath core simulation harness",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			logger.SetLevel(level)

			if configPath != "" {
				if err := reg.LoadFile(configPath); err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
			}
			control.WireHotReload(reg)
			control.RegisterReloadHook(func(snap control.RegistrySnapshot) {
				logger.WithFields(logrus.Fields{
					"disable_tx_bounce": snap.DisableTxBounce,
					"rx_zero_copy":      snap.RxZeroCopy,
				}).Debug("registry reloaded")
			})
			reg.BindEnv()
			if cmd.Flags().Changed("disable-tx-bounce") {
				reg.SetDisableTxBounce(disableTxBounce)
			}
			if cmd.Flags().Changed("rx-zero-copy") {
				reg.SetRxZeroCopy(rxZeroCopy)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "registry config file (yaml/json/toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&disableTxBounce, "disable-tx-bounce", false, "XskDisableTxBounce registry control")
	rootCmd.PersistentFlags().BoolVar(&rxZeroCopy, "rx-zero-copy", false, "XskRxZeroCopy registry control")

	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(runCommand(logger, reg))
	rootCmd.AddCommand(runAllCommand(logger, reg))
	rootCmd.AddCommand(debugCommand(logger, reg))
	rootCmd.AddCommand(metricsCommand(logger, reg))

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("xsksim failed")
		os.Exit(1)
	}
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the available scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scenarios {
				fmt.Printf("%-4s %s\n", s.name, s.desc)
			}
			return nil
		},
	}
}

func runCommand(logger *logrus.Logger, reg *control.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "run [scenario]",
		Short: "run one named scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := findScenario(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q (see 'xsksim list')", args[0])
			}
			log := logger.WithField("scenario", s.name)
			if err := s.run(log, reg); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			log.Info("scenario passed")
			return nil
		},
	}
}

// debugCommand binds a single RX socket, registers it and the host's
// platform probes, and dumps every probe's current value.
func debugCommand(logger *logrus.Logger, reg *control.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "bind a socket and dump its debug probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.WithField("command", "debug")
			iface := sim.New(1)
			s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindRx)
			if err != nil {
				return fmt.Errorf("bind: %w", err)
			}
			defer s.Close()

			dp := control.NewDebugProbes()
			control.RegisterPlatformProbes(dp)
			s.RegisterDebugProbes(dp, "socket")

			for name, val := range dp.DumpState() {
				fmt.Printf("%-24s %v\n", name, val)
			}
			return nil
		},
	}
}

// metricsCommand binds a TX socket, pushes its statistics into a
// MetricsRegistry, and serves them as Prometheus exposition text on
// addr until interrupted. No traffic is driven through the socket.
func metricsCommand(logger *logrus.Logger, reg *control.Registry) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "serve one socket's statistics as Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.WithField("command", "metrics")
			iface := sim.New(1)
			s, err := newBoundSocket(log, reg, iface, 1, 0, 64*1024, 4096, 0, api.BindTx)
			if err != nil {
				return fmt.Errorf("bind: %w", err)
			}
			defer s.Close()

			if s.DebugUmem() == nil {
				return fmt.Errorf("socket has no umem")
			}

			mr := control.NewMetricsRegistry()
			s.ReportMetrics(mr)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(mr.Registry(), promhttp.HandlerOpts{}))
			log.WithField("addr", addr).Info("serving /metrics")
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to serve /metrics on")
	return cmd
}

func runAllCommand(logger *logrus.Logger, reg *control.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "run every scenario in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, s := range scenarios {
				log := logger.WithField("scenario", s.name)
				if err := s.run(log, reg); err != nil {
					log.WithError(err).Error("scenario failed")
					failed++
					continue
				}
				log.Info("scenario passed")
			}
			if failed > 0 {
				return fmt.Errorf("%d scenario(s) failed", failed)
			}
			return nil
		},
	}
}
