// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Thread pinning for the reactor loop. Callers must hold the OS thread
// (runtime.LockOSThread) for the pin to stick to their goroutine.

package affinity

// Pin restricts the calling OS thread to the given logical CPU.
func Pin(cpu int) error {
	return pin(cpu)
}

// Allowed lists the CPUs the calling thread may run on.
func Allowed() ([]int, error) {
	return allowed()
}
