//go:build linux || darwin

package scheduler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// lowerWorkerPriority locks the calling goroutine to its OS thread and
// asks the kernel to schedule it at a reduced priority. Workers call this
// once, right after they start, per §4.7's "reduced OS scheduling
// priority where supported".
func lowerWorkerPriority() {
	runtime.LockOSThread()
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, 10)
}
