package guest

import "github.com/dop251/goja"

// applyMemoryLimit installs vm's heap ceiling. Isolated in its own file
// since it is the one part of this package pinned to a specific goja
// memory-limit release; vm.Get/Set/RunProgram etc. are stable across
// versions but this knob has moved before.
func applyMemoryLimit(vm *goja.Runtime, memoryLimitMB int) {
	if memoryLimitMB <= 0 {
		return
	}
	vm.SetMemoryLimit(int64(memoryLimitMB) * 1024 * 1024)
}
