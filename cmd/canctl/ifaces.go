package main

import (
	"fmt"

	"github.com/spf13/cobra"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/nl"
)

var ifacesDetails bool

var ifacesCmd = &cobra.Command{
	Use:   "ifaces",
	Short: "List CAN interfaces.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := socketcan.AvailableInterfaces()
		if err != nil {
			return err
		}
		for _, name := range names {
			if !ifacesDetails {
				fmt.Println(name)
				continue
			}
			ifc, err := nl.Open(name)
			if err != nil {
				log.Warn("iface_lookup_failed", "iface", name, "error", err)
				continue
			}
			d, err := ifc.Details()
			if err != nil {
				log.Warn("iface_details_failed", "iface", name, "error", err)
				continue
			}
			fmt.Println(summary(d))
		}
		return nil
	},
}

func init() {
	ifacesCmd.Flags().BoolVarP(&ifacesDetails, "details", "d", false, "Show kind, state and bitrate")
}
