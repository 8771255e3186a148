//go:build darwin

package mediaprobe

import (
	"os"
	"syscall"
)

func creationTime(info os.FileInfo) (int64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime().Unix(), true
	}
	return stat.Birthtimespec.Sec, true
}
