package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/udptrain/internal/config"
	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/prober"
)

type sendOptions struct {
	policy     string
	priority   string
	entropy    string
	count      int
	initial    int
	separation int
	trains     int
	length     int
	extra      int
	port       int
	highPort   int
	lowPort    int
	both       bool
	pause      time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send [flags] <destination> [<low-priority-destination>]",
		Short: "Send a probe train",
		Long: `Send probe packets back to back with no inter-packet delay.

Policies:
  none              --count packets, untagged, zero or random padding (--entropy)
  dual-destination  interleaved trains, high class to <destination>, low class
                    to <low-priority-destination>
  dual-port         interleaved trains on one socket, ports.high / ports.low
  dual-tos          interleaved trains on one socket, IP_TOS high_tos / low_tos
  variable-payload  --count packets of --priority; H packets carry --extra bytes

Interleaved trains send --initial packets of the --priority class, then
--trains times one packet of that class followed by --separation packets of
the other class.

Examples:
  udptrain send --policy none --count 1000 --length 1000 --entropy H 10.0.0.2
  udptrain send --policy dual-port --initial 100 --separation 10 --trains 50 10.0.0.2
  udptrain send --policy dual-tos --both --pause 60s 10.0.0.2`,
		Args: rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.policy, "policy", "", "none|dual-destination|dual-port|dual-tos|variable-payload (default sender.policy)")
	f.StringVar(&opts.priority, "priority", "", "first class H|L (default sender.priority)")
	f.StringVar(&opts.entropy, "entropy", "", "padding entropy H|L (default sender.entropy)")
	f.IntVarP(&opts.count, "count", "n", 1000, "packets for none and variable-payload")
	f.IntVar(&opts.initial, "initial", 100, "initial train length of the first class")
	f.IntVar(&opts.separation, "separation", 10, "second-class packets per train")
	f.IntVar(&opts.trains, "trains", 10, "number of interleaved trains")
	f.IntVarP(&opts.length, "length", "l", 1000, "probe payload length in bytes")
	f.IntVar(&opts.extra, "extra", 0, "extra payload bytes for H in variable-payload")
	f.IntVar(&opts.port, "port", 0, "override ports.probe")
	f.IntVar(&opts.highPort, "high-port", 0, "override ports.high")
	f.IntVar(&opts.lowPort, "low-port", 0, "override ports.low")
	f.BoolVar(&opts.both, "both", false, "run L, pause, then run H")
	f.DurationVar(&opts.pause, "pause", 0, "pause between the L and H runs (default sender.pause)")
	return cmd
}

func runSend(cmd *cobra.Command, root *rootOptions, opts *sendOptions, args []string) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	probeCfg, ep, err := buildSend(cmd, cfg, opts, args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	open := func(c prober.Config) (prober.Transport, error) {
		return prober.Open(c.Policy, ep)
	}

	if opts.both {
		pause := cfg.Sender.Pause
		if cmd.Flags().Changed("pause") {
			pause = opts.pause
		}
		all, err := prober.RunPair(ctx, probeCfg, pause, open)
		for _, s := range all {
			printStats(cmd.OutOrStdout(), s)
		}
		return err
	}

	if err := probeCfg.Validate(); err != nil {
		return err
	}
	tr, err := open(probeCfg)
	if err != nil {
		return err
	}
	defer tr.Close()
	stats, err := prober.Run(ctx, probeCfg, tr)
	printStats(cmd.OutOrStdout(), stats)
	return err
}

// buildSend merges flags over the sender configuration.
func buildSend(cmd *cobra.Command, cfg *config.Config, opts *sendOptions, args []string) (prober.Config, prober.Endpoints, error) {
	probeCfg := prober.Config{
		Policy:     cfg.Sender.Policy,
		Priority:   cfg.Sender.Priority,
		Entropy:    cfg.Sender.Entropy,
		Count:      opts.count,
		Initial:    opts.initial,
		Separation: opts.separation,
		Trains:     opts.trains,
		Length:     opts.length,
		Extra:      opts.extra,
	}
	var err error
	if opts.policy != "" {
		if probeCfg.Policy, err = core.ParsePolicy(opts.policy); err != nil {
			return probeCfg, prober.Endpoints{}, fmt.Errorf("%w: %v", core.ErrInvalidArguments, err)
		}
	}
	if opts.priority != "" {
		if probeCfg.Priority, err = core.ParsePriority(opts.priority); err != nil {
			return probeCfg, prober.Endpoints{}, err
		}
	}
	if opts.entropy != "" {
		if probeCfg.Entropy, err = core.ParseEntropy(opts.entropy); err != nil {
			return probeCfg, prober.Endpoints{}, err
		}
	}

	ep := prober.Endpoints{
		Destinations: args,
		ProbePort:    cfg.Ports.Probe,
		HighPort:     cfg.Ports.High,
		LowPort:      cfg.Ports.Low,
		HighTOS:      cfg.Sender.HighTOS,
		LowTOS:       cfg.Sender.LowTOS,
	}
	if cmd.Flags().Changed("port") {
		ep.ProbePort = opts.port
	}
	if cmd.Flags().Changed("high-port") {
		ep.HighPort = opts.highPort
	}
	if cmd.Flags().Changed("low-port") {
		ep.LowPort = opts.lowPort
	}
	return probeCfg, ep, nil
}

func printStats(w io.Writer, s prober.Stats) {
	classes := make([]string, 0, len(s.Sent))
	for class, n := range s.Sent {
		label := "-"
		if class != 0 {
			label = class.String()
		}
		classes = append(classes, fmt.Sprintf("%s=%d", label, n))
	}
	sort.Strings(classes)
	failed := 0
	for _, n := range s.Failed {
		failed += n
	}
	fmt.Fprintf(w, "sent %s failed=%d elapsed=%v\n", strings.Join(classes, " "), failed, s.Elapsed)
}
