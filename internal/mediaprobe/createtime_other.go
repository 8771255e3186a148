//go:build !linux && !darwin

package mediaprobe

import "os"

func creationTime(info os.FileInfo) (int64, bool) {
	return info.ModTime().Unix(), true
}
