package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/udptrain/internal/capture"
	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/probe"
	"firestige.xyz/udptrain/internal/timing"
)

type receiveOptions struct {
	listen           string
	port             int
	outputDir        string
	rounds           int
	flushOnInterrupt bool
	untagged         bool
}

func newReceiveCmd(root *rootOptions) *cobra.Command {
	opts := &receiveOptions{}
	cmd := &cobra.Command{
		Use:   "receive <initial_experiment_run_time_seconds> <probe_packet_length_bytes> <inter_experiment_sleep_time_seconds>",
		Short: "Capture a probe run and write it to a .raw file",
		Long: `Bind the probe port and timestamp every arriving probe relative to the
last checkpoint. A delimiter line is written once the link has been idle for
the inter-experiment sleep time; at the run-time deadline the buffer is
flushed to <output_dir>/<source-ip>_<timestamp>.raw.

The default port is ports.probe, which the none, variable-payload,
dual-destination and dual-tos send policies target. A dual-port run sends
the classes to ports.high and ports.low; run one receiver per class with
--port for each.

Examples:
  udptrain receive 60 1000 20                 # one 60s capture of 1000-byte probes
  udptrain receive 60 1000 20 --rounds 4      # keep capturing, later rounds last 30s`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "override receiver.listen_address")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "override receiver.port")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "override receiver.output_dir")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "override receiver.rounds")
	cmd.Flags().BoolVar(&opts.flushOnInterrupt, "flush-on-interrupt", false, "write the pending capture when interrupted")
	cmd.Flags().BoolVar(&opts.untagged, "untagged", false, "expect probes without a priority tag byte")
	return cmd
}

func runReceive(cmd *cobra.Command, root *rootOptions, opts *receiveOptions, args []string) error {
	runTime, err := parseSeconds("initial_experiment_run_time_seconds", args[0])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: probe_packet_length_bytes %q", core.ErrInvalidArguments, args[1])
	}
	idle, err := parseSeconds("inter_experiment_sleep_time_seconds", args[2])
	if err != nil {
		return err
	}

	cfg, err := setup(root)
	if err != nil {
		return err
	}
	r := cfg.Receiver
	if cmd.Flags().Changed("listen") {
		r.ListenAddress = opts.listen
	}
	if cmd.Flags().Changed("port") {
		r.Port = opts.port
	}
	if cmd.Flags().Changed("output-dir") {
		r.OutputDir = opts.outputDir
	}
	if cmd.Flags().Changed("rounds") {
		r.Rounds = opts.rounds
	}
	if cmd.Flags().Changed("flush-on-interrupt") {
		r.FlushOnInterrupt = opts.flushOnInterrupt
	}
	if opts.untagged {
		r.Tagged = false
	}
	if r.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be >= 1", core.ErrInvalidArguments)
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("%w: %d", core.ErrInvalidPort, r.Port)
	}
	if err := probe.ValidateLength(length, r.Tagged); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	source, err := capture.ListenUDP(ctx, capture.ListenOptions{
		Address:      r.ListenAddress,
		Port:         r.Port,
		ReadBuffer:   r.ReadBuffer,
		PollInterval: r.PollInterval,
	})
	if err != nil {
		return err
	}

	collector := capture.NewCollector(source, capture.NewFileSink(appFs, r.OutputDir), timing.NewMonotonicClock(), capture.Options{
		Session: capture.SessionConfig{
			RunTime:        runTime,
			LaterRunTime:   r.LaterRunTime,
			IdleThreshold:  idle,
			Tagged:         r.Tagged,
			Delimiter:      r.Delimiter,
			BufferCapacity: r.BufferCapacity,
		},
		PacketLength:     length,
		Rounds:           r.Rounds,
		FlushOnInterrupt: r.FlushOnInterrupt,
		Naming: capture.NameOptions{
			Placeholder: r.PlaceholderAddress,
			Layout:      r.TimestampLayout,
			Extension:   r.Extension,
		},
	})
	return collector.Run(ctx)
}

// parseSeconds accepts whole or fractional seconds.
func parseSeconds(name, s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) || v > float64(time.Duration(1<<62)/time.Second) {
		return 0, fmt.Errorf("%w: %s %q must be a positive number of seconds", core.ErrInvalidArguments, name, s)
	}
	return time.Duration(v * float64(time.Second)), nil
}
