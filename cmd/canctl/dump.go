package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/dump"
	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
)

var (
	dumpLog     bool
	dumpCount   int
	dumpFilters []string
	dumpJoin    bool
	dumpErrors  bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print frames received on the interface.",
	Args:  cobra.NoArgs,
	RunE:  runDump,
}

func init() {
	f := dumpCmd.Flags()
	f.BoolVarP(&dumpLog, "log", "l", false, "Write candump log lines")
	f.IntVarP(&dumpCount, "count", "n", 0, "Stop after this many frames; 0 runs until interrupted")
	f.StringSliceVarP(&dumpFilters, "filter", "f", nil, "Receive filter <id>:<mask> or <id>~<mask>, repeatable")
	f.BoolVar(&dumpJoin, "join", false, "Require every filter to match")
	f.BoolVarP(&dumpErrors, "errors", "e", false, "Receive and decode error frames")
}

func runDump(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(dumpFilters)
	if err != nil {
		return err
	}
	errMask := socketcan.ERR_MASK_NONE
	if dumpErrors {
		errMask = socketcan.ERR_MASK_ALL
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	iface := cfg.Interface
	s, err := openAsync(iface, cfg.FD, filters, dumpJoin, errMask)
	if err != nil {
		return err
	}
	defer s.Close()
	log.Info("dump_start", "iface", iface, "fd", cfg.FD, "filters", len(filters))

	var w *dump.Writer
	if dumpLog {
		w = dump.NewWriter(os.Stdout)
	}
	for n := 0; dumpCount == 0 || n < dumpCount; {
		rctx, rcancel := readContext(ctx, cfg.ReadTimeout)
		f, err := s.ReadFrame(rctx)
		rcancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if socketcan.ShouldRetry(err) {
				log.Debug("dump_idle", "iface", iface, "timeout", cfg.ReadTimeout)
				continue
			}
			metrics.IncError(metrics.ErrRead)
			return err
		}
		n++
		ce := observe(iface, f)
		if w != nil {
			if err := w.WriteFrame(time.Now(), iface, f); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			continue
		}
		if ce != nil {
			fmt.Printf("%s  %s  %v\n", iface, dump.FormatFrame(f), ce)
			continue
		}
		fmt.Printf("%s  %s\n", iface, dump.FormatFrame(f))
	}
	return nil
}

// readContext bounds a single read by d; zero means no bound.
func readContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
