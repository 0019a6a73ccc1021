package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
	"github.com/lion187chen/socketcan-go/v2/nl"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Configure the interface selected with --iface over rtnetlink.",
}

// withLink resolves the configured interface and runs fn on it.
func withLink(fn func(nl.Interface) error) error {
	ifc, err := nl.Open(cfg.Interface)
	if err != nil {
		return err
	}
	if err := fn(ifc); err != nil {
		metrics.IncError(metrics.ErrNetlink)
		return err
	}
	return nil
}

func parseU32(s, what string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return uint32(v), nil
}

// parseSamplePoint accepts 0.875 or 875 and returns tenths of a percent.
func parseSamplePoint(s string) (uint32, error) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f >= 1 {
			return 0, fmt.Errorf("invalid sample point %q", s)
		}
		return uint32(f*1000 + 0.5), nil
	}
	return parseU32(s, "sample point")
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

// bitrateArgs reads <rate> [sample-point].
func bitrateArgs(args []string) (rate, sp uint32, err error) {
	if rate, err = parseU32(args[0], "bitrate"); err != nil {
		return 0, 0, err
	}
	if len(args) > 1 {
		if sp, err = parseSamplePoint(args[1]); err != nil {
			return 0, 0, err
		}
	}
	return rate, sp, nil
}

func summary(d nl.InterfaceDetails) string {
	var sb strings.Builder
	state := "down"
	if d.IsUp {
		state = "up"
	}
	fmt.Fprintf(&sb, "%s: index %d kind %s %s mtu %d", d.Name, d.Index, d.Kind, state, d.MTU)
	p := d.Can
	if p == nil {
		return sb.String()
	}
	if p.State != nil {
		fmt.Fprintf(&sb, "\n  state %s", *p.State)
	}
	if p.RestartMs != nil {
		fmt.Fprintf(&sb, " restart-ms %d", *p.RestartMs)
	}
	if p.BitTiming != nil {
		bt := p.BitTiming
		fmt.Fprintf(&sb, "\n  bitrate %d sample-point %.3f tq %d prop-seg %d phase-seg1 %d phase-seg2 %d sjw %d brp %d",
			bt.Bitrate, float64(bt.Sample_point)/1000, bt.Tq, bt.Prop_seg, bt.Phase_seg1, bt.Phase_seg2, bt.Sjw, bt.Brp)
	}
	if p.DataBitTiming != nil {
		fmt.Fprintf(&sb, "\n  dbitrate %d dsample-point %.3f", p.DataBitTiming.Bitrate, float64(p.DataBitTiming.Sample_point)/1000)
	}
	if p.Clock != nil {
		fmt.Fprintf(&sb, "\n  clock %d", *p.Clock)
	}
	if p.CtrlMode != nil {
		var modes []string
		for _, m := range p.CtrlMode.Enabled() {
			modes = append(modes, m.String())
		}
		fmt.Fprintf(&sb, "\n  ctrlmode <%s>", strings.Join(modes, ","))
	}
	if p.BerrCounter != nil {
		fmt.Fprintf(&sb, "\n  berr-counter tx %d rx %d", p.BerrCounter.Txerr, p.BerrCounter.Rxerr)
	}
	if p.Termination != nil {
		fmt.Fprintf(&sb, "\n  termination %d", *p.Termination)
	}
	if s := p.Stats; s != nil {
		fmt.Fprintf(&sb, "\n  bus-errors %d error-warn %d error-pass %d bus-off %d arbit-lost %d restarts %d",
			s.Bus_error, s.Error_warning, s.Error_passive, s.Bus_off, s.Arbitration_lost, s.Restarts)
	}
	return sb.String()
}

func init() {
	simple := func(use, short string, fn func(nl.Interface) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withLink(fn)
			},
		}
	}

	linkCmd.AddCommand(
		simple("up", "Bring the interface up.", nl.Interface.BringUp),
		simple("down", "Bring the interface down.", nl.Interface.BringDown),
		simple("del", "Delete the interface.", nl.Interface.Delete),
		simple("restart", "Restart a bus-off controller.", nl.Interface.Restart),
		simple("show", "Show link and CAN parameters.", func(i nl.Interface) error {
			d, err := i.Details()
			if err != nil {
				return err
			}
			fmt.Println(summary(d))
			return nil
		}),
		&cobra.Command{
			Use:   "bitrate <rate> [sample-point]",
			Short: "Set the nominal bitrate; the interface must be down.",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rate, sp, err := bitrateArgs(args)
				if err != nil {
					return err
				}
				return withLink(func(i nl.Interface) error { return i.SetBitrate(rate, sp) })
			},
		},
		&cobra.Command{
			Use:   "dbitrate <rate> [sample-point]",
			Short: "Set the CAN FD data bitrate.",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rate, sp, err := bitrateArgs(args)
				if err != nil {
					return err
				}
				return withLink(func(i nl.Interface) error { return i.SetDataBitrate(rate, sp) })
			},
		},
		&cobra.Command{
			Use:   "restart-ms <ms>",
			Short: "Set the automatic bus-off restart delay; 0 disables it.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ms, err := parseU32(args[0], "restart-ms")
				if err != nil {
					return err
				}
				return withLink(func(i nl.Interface) error { return i.SetRestartMs(ms) })
			},
		},
		&cobra.Command{
			Use:   "ctrlmode <mode> <on|off>...",
			Short: "Switch control modes, e.g. listen-only on fd off.",
			Args: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 || len(args)%2 != 0 {
					return fmt.Errorf("want pairs of <mode> <on|off>")
				}
				return nil
			},
			RunE: func(cmd *cobra.Command, args []string) error {
				var cm nl.CtrlModes
				for i := 0; i < len(args); i += 2 {
					m, err := nl.ParseCtrlMode(args[i])
					if err != nil {
						return err
					}
					on, err := parseOnOff(args[i+1])
					if err != nil {
						return err
					}
					cm.Set(m, on)
				}
				return withLink(func(i nl.Interface) error { return i.SetCtrlModes(cm) })
			},
		},
		&cobra.Command{
			Use:   "termination <ohms>",
			Short: "Set the bus termination; 0 disables it.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 16)
				if err != nil {
					return fmt.Errorf("invalid termination %q: %w", args[0], err)
				}
				return withLink(func(i nl.Interface) error { return i.SetTermination(uint16(v)) })
			},
		},
		&cobra.Command{
			Use:   "mtu <16|72>",
			Short: "Switch between classic and FD MTU.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mtu, err := parseU32(args[0], "mtu")
				if err != nil {
					return err
				}
				return withLink(func(i nl.Interface) error { return i.SetMTU(mtu) })
			},
		},
		&cobra.Command{
			Use:   "add [kind]",
			Short: "Create the interface; kind defaults to vcan.",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kind := "vcan"
				if len(args) == 1 {
					kind = args[0]
				}
				ifc, err := nl.Create(cfg.Interface, 0, kind)
				if err != nil {
					metrics.IncError(metrics.ErrNetlink)
					return err
				}
				log.Info("link_created", "iface", cfg.Interface, "kind", kind, "index", ifc.Index())
				return nil
			},
		},
	)
}
