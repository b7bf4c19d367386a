package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/udptrain/internal/capture"
	"firestige.xyz/udptrain/internal/config"
	"firestige.xyz/udptrain/internal/core"
)

type inspectOptions struct {
	expected map[string]int
	missing  bool
	pcap     bool
	untagged bool
	allPorts bool
	writeRaw bool
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect <file.raw|file.pcap>",
		Short: "Report received, missing and reordered probes of a capture file",
		Long: `Parse a capture file and print one row per delimiter-separated segment
and class. Ids are judged against the observed range unless --expected gives
the transmitted count of a class.

Examples:
  udptrain inspect temp/10.0.0.1_2024-03-09_14:05:07.raw
  udptrain inspect --expected H=110,L=500 --missing capture.raw
  udptrain inspect --pcap --write-raw probes.pcap   # convert a tcpdump of the probe ports`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringToIntVar(&opts.expected, "expected", nil, "transmitted packets per class, e.g. H=110,L=500 or -=1000")
	cmd.Flags().BoolVar(&opts.missing, "missing", false, "list missing ids")
	cmd.Flags().BoolVar(&opts.pcap, "pcap", false, "read a pcap file instead of a capture file")
	cmd.Flags().BoolVar(&opts.untagged, "untagged", false, "pcap probes carry no priority tag")
	cmd.Flags().BoolVar(&opts.allPorts, "all-ports", false, "pcap: accept every UDP port, not only the probe ports")
	cmd.Flags().BoolVar(&opts.writeRaw, "write-raw", false, "pcap: write the converted capture to receiver.output_dir")
	return cmd
}

func runInspect(cmd *cobra.Command, root *rootOptions, opts *inspectOptions, path string) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	expected := make(map[core.Priority]int, len(opts.expected))
	for k, v := range opts.expected {
		if k == string(capture.UntaggedMark) {
			expected[0] = v
			continue
		}
		p, err := core.ParsePriority(k)
		if err != nil {
			return err
		}
		expected[p] = v
	}

	f, err := appFs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrFileOpen, err)
	}
	defer f.Close()

	var entries []capture.Entry
	if opts.pcap {
		if entries, err = importPcap(cmd.OutOrStdout(), cfg, opts, f); err != nil {
			return err
		}
	} else if entries, err = capture.ReadRecords(f, cfg.Receiver.Delimiter); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrConfigInvalid, path, err)
	}
	printSummary(cmd.OutOrStdout(), capture.Summarize(entries, expected), opts.missing)
	return nil
}

func importPcap(out io.Writer, cfg *config.Config, opts *inspectOptions, r io.Reader) ([]capture.Entry, error) {
	popts := capture.PcapOptions{Tagged: !opts.untagged}
	if !opts.allPorts {
		popts.Ports = []int{cfg.Ports.Probe, cfg.Ports.High, cfg.Ports.Low}
	}
	pc, err := capture.ReadPcap(r, popts)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "pcap: %d probes, %d malformed, %d skipped\n", len(pc.Entries), pc.Malformed, pc.Skipped)

	if opts.writeRaw {
		sink := capture.NewFileSink(appFs, cfg.Receiver.OutputDir)
		name := capture.FileName(pc.Addr(), pc.Start, capture.NameOptions{
			Placeholder: cfg.Receiver.PlaceholderAddress,
			Layout:      cfg.Receiver.TimestampLayout,
			Extension:   cfg.Receiver.Extension,
		})
		if err := sink.Write(name, pc.Bytes()); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "wrote %s\n", sink.Path(name))
	}
	return pc.Entries, nil
}

func printSummary(out io.Writer, segments []capture.Segment, listMissing bool) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tCLASS\tRECEIVED\tDISTINCT\tDUPLICATES\tREORDERED\tMISSING\tIDS\tSPAN")
	for i, seg := range segments {
		for _, tag := range seg.Tags() {
			cs := seg.Classes[tag]
			fmt.Fprintf(w, "%d\t%c\t%d\t%d\t%d\t%d\t%d\t%d-%d\t%s-%s\n",
				i, displayTag(tag), cs.Received, cs.Distinct, cs.Duplicates, cs.Reordered,
				cs.MissingCount, cs.Min, cs.Max, cs.First, cs.Last)
		}
	}
	w.Flush()

	if !listMissing {
		return
	}
	for i, seg := range segments {
		for _, tag := range seg.Tags() {
			cs := seg.Classes[tag]
			if cs.MissingCount == 0 {
				continue
			}
			if cs.Missing == nil {
				fmt.Fprintf(out, "segment %d class %c missing: %d ids, too many to list\n", i, displayTag(tag), cs.MissingCount)
				continue
			}
			ids := make([]string, len(cs.Missing))
			for j, id := range cs.Missing {
				ids[j] = strconv.Itoa(int(id))
			}
			fmt.Fprintf(out, "segment %d class %c missing: %s\n", i, displayTag(tag), strings.Join(ids, ","))
		}
	}
}

func displayTag(tag core.Priority) rune {
	if tag == 0 {
		return capture.UntaggedMark
	}
	return rune(tag)
}
