package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/async"
	"github.com/lion187chen/socketcan-go/v2/dump"
	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
)

var (
	playNoTiming bool
	playTo       string
	playFilters  []string
)

var playCmd = &cobra.Command{
	Use:   "play <logfile>",
	Short: "Replay a candump log, keeping the recorded gaps between frames.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	f := playCmd.Flags()
	f.BoolVar(&playNoTiming, "no-timing", false, "Send as fast as possible")
	f.StringVar(&playTo, "to", "", "Send every record on this interface instead of the recorded one")
	f.StringSliceVarP(&playFilters, "filter", "f", nil, "Only replay records matching <id>:<mask> or <id>~<mask>")
}

// player owns one sink per interface the log mentions.
type player struct {
	fd      bool
	sockets map[string]*async.Socket
	sinks   map[string]*async.Sink
}

func (p *player) sink(iface string) (*async.Sink, error) {
	if k, ok := p.sinks[iface]; ok {
		return k, nil
	}
	open := async.Open
	if p.fd {
		open = async.OpenFd
	}
	s, err := open(iface)
	if err != nil {
		return nil, err
	}
	p.sockets[iface] = s
	p.sinks[iface] = s.Sink()
	return p.sinks[iface], nil
}

func (p *player) close() {
	for iface, k := range p.sinks {
		_ = k.Close()
		if err := p.sockets[iface].Close(); err != nil {
			log.Warn("close_failed", "iface", iface, "error", err)
		}
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(playFilters)
	if err != nil {
		return err
	}
	r, err := dump.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	p := &player{fd: cfg.FD, sockets: map[string]*async.Socket{}, sinks: map[string]*async.Sink{}}
	defer p.close()

	var (
		prev    uint64
		started bool
		sent    int
	)
	for rec, err := range r.Records() {
		if err != nil {
			var pe *dump.ParseError
			if errors.As(err, &pe) && pe.Kind == dump.KindIO {
				metrics.IncError(metrics.ErrRead)
				return err
			}
			metrics.IncReplaySkipped()
			log.Warn("replay_skip", "error", err)
			continue
		}
		if len(filters) > 0 && !socketcan.MatchesAny(filters, rec.Frame, false) {
			continue
		}

		if !playNoTiming && started && rec.TimestampMicros > prev {
			if err := sleep(ctx, time.Duration(rec.TimestampMicros-prev)*time.Microsecond); err != nil {
				return nil
			}
		}
		prev, started = rec.TimestampMicros, true

		iface := rec.Device
		if playTo != "" {
			iface = playTo
		}
		k, err := p.sink(iface)
		if err != nil {
			return err
		}
		if err := k.Send(ctx, rec.Frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncError(metrics.ErrWrite)
			return err
		}
		metrics.IncTx(iface)
		sent++
	}
	for _, k := range p.sinks {
		if err := k.Flush(ctx); err != nil {
			return nil
		}
	}
	log.Info("replay_done", "sent", sent, "skipped", metrics.Snap().Skipped)
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
