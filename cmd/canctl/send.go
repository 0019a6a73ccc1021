package main

import (
	"fmt"

	"github.com/spf13/cobra"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/dump"
	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
)

var sendCmd = &cobra.Command{
	Use:   "send <frame>...",
	Short: "Send frames given in cansend syntax, e.g. 123#DEADBEEF or 014##1AABB.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frames := make([]socketcan.Frame, 0, len(args))
		fd := cfg.FD
		for _, a := range args {
			f, err := dump.ParseFrame(a)
			if err != nil {
				metrics.IncError(metrics.ErrParse)
				return fmt.Errorf("frame %q: %w", a, err)
			}
			if _, ok := f.(socketcan.FdFrame); ok {
				fd = true
			}
			frames = append(frames, f)
		}

		s, err := openWriter(cfg.Interface, fd)
		if err != nil {
			return err
		}
		defer s.Close()
		for _, f := range frames {
			if err := s.WriteFrameInsist(f); err != nil {
				metrics.IncError(metrics.ErrWrite)
				return err
			}
			metrics.IncTx(cfg.Interface)
			log.Debug("sent", "iface", cfg.Interface, "frame", f)
		}
		return nil
	},
}
