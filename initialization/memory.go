package initialization

import (
	"github.com/shirou/gopsutil/mem"
)

// availableMemory returns the memory that can be allocated without swapping.
func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
