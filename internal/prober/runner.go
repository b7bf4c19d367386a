package prober

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/log"
	"firestige.xyz/udptrain/internal/metrics"
	"firestige.xyz/udptrain/internal/probe"
)

// Stats summarizes a finished run.
type Stats struct {
	Sent    map[core.Priority]int
	Failed  map[core.Priority]int
	Elapsed time.Duration
}

// Total is the number of datagrams handed to the transport.
func (s Stats) Total() int {
	n := 0
	for _, v := range s.Sent {
		n += v
	}
	return n
}

// Run sends every datagram of cfg through tr back to back. Templates are
// built before the first send, so a random source failure aborts the run
// with nothing sent. Individual send failures are counted, not returned.
func Run(ctx context.Context, cfg Config, tr Transport) (Stats, error) {
	stats := Stats{Sent: map[core.Priority]int{}, Failed: map[core.Priority]int{}}
	planner, err := NewPlanner(cfg)
	if err != nil {
		return stats, err
	}

	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	templates := make(map[core.Priority][]byte)
	for _, class := range planner.Classes() {
		pkt, err := probe.NewTemplate(probe.TemplateOptions{
			Length:  planner.LengthOf(class),
			Tagged:  cfg.Policy.Tagged(),
			Tag:     class,
			Entropy: cfg.Entropy,
			Random:  random,
		})
		if err != nil {
			return stats, err
		}
		templates[class] = pkt
	}

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"policy":   cfg.Policy.String(),
		"priority": classLabel(cfg.Priority),
		"entropy":  cfg.Entropy.String(),
	})
	logger.Infof("sending %v", planner.Expected())

	done := ctx.Done()
	start := time.Now()
	planner.Each(func(s Send) bool {
		select {
		case <-done:
			err = core.ErrInterrupted
			return false
		default:
		}
		pkt := templates[s.Class]
		probe.Stamp(pkt, s.Sequence)
		label := classLabel(s.Class)
		if serr := tr.Send(s.Class, pkt); serr != nil {
			if stats.Failed[s.Class] == 0 {
				logger.WithError(serr).Warnf("send failed for class %s", label)
			}
			stats.Failed[s.Class]++
			metrics.SenderErrorsTotal.WithLabelValues(label).Inc()
			return true
		}
		stats.Sent[s.Class]++
		metrics.SenderPacketsTotal.WithLabelValues(label).Inc()
		return true
	})
	stats.Elapsed = time.Since(start)

	logger.WithFields(map[string]interface{}{
		"sent":    stats.Total(),
		"elapsed": stats.Elapsed,
	}).Info("run finished")
	return stats, err
}

// Opener creates the transport for one run.
type Opener func(cfg Config) (Transport, error)

// RunPair performs a full experiment: the L run, a pause, then the H run,
// each over its own transport. For the none policy the selector is the
// entropy mode, otherwise it is the priority class.
func RunPair(ctx context.Context, cfg Config, pause time.Duration, open Opener) ([]Stats, error) {
	var all []Stats
	for i, class := range []core.Priority{core.PriorityLow, core.PriorityHigh} {
		if i > 0 && pause > 0 {
			log.GetLogger().Infof("pausing %v before the %s run", pause, class)
			t := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return all, core.ErrInterrupted
			case <-t.C:
			}
		}
		run := cfg
		if cfg.Policy == core.PolicyNone {
			run.Entropy = core.Entropy(class)
		} else {
			run.Priority = class
		}
		stats, err := runOnce(ctx, run, open)
		all = append(all, stats)
		if err != nil {
			return all, fmt.Errorf("%s run: %w", class, err)
		}
	}
	return all, nil
}

func runOnce(ctx context.Context, cfg Config, open Opener) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	tr, err := open(cfg)
	if err != nil {
		return Stats{}, err
	}
	defer tr.Close()
	return Run(ctx, cfg, tr)
}

func classLabel(class core.Priority) string {
	if class == 0 {
		return "-"
	}
	return class.String()
}
