//go:build linux

package socketcan

import (
	"fmt"

	"github.com/prometheus/procfs/sysfs"
)

// AvailableInterfaces lists the CAN network interfaces on the host, in
// directory listing order.
func AvailableInterfaces() ([]string, error) {
	return AvailableInterfacesAt(sysfs.DefaultMountPoint)
}

// AvailableInterfacesAt is AvailableInterfaces against a sysfs mounted at
// root.
func AvailableInterfacesAt(root string) ([]string, error) {
	fs, err := sysfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("couldn't open sysfs: %w", err)
	}
	devices, err := fs.NetClassDevices()
	if err != nil {
		return nil, fmt.Errorf("couldn't list network devices: %w", err)
	}
	var ifaces []string
	for _, dev := range devices {
		iface, err := fs.NetClassByIface(dev)
		if err != nil {
			// Devices can vanish between listing and reading.
			Logger().Debug("socketcan skip network device", "device", dev, "error", err)
			continue
		}
		if iface.Type != nil && *iface.Type == ARPHRD_CAN {
			ifaces = append(ifaces, dev)
		}
	}
	return ifaces, nil
}
