package serial

import (
	"fmt"
	"sort"

	bugst "go.bug.st/serial"
)

// ListPorts returns the serial device paths present on the system, sorted.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
