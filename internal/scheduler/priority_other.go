//go:build !linux && !darwin

package scheduler

// lowerWorkerPriority is a no-op on platforms without a setpriority-style
// syscall wired up; workers simply run at normal priority there.
func lowerWorkerPriority() {}
