//go:build linux

package embedtime

import (
	"strconv"

	"golang.org/x/sys/unix"
)

func xattrName() string { return "user." + AttrName }

func readImpl(path string) (*uint64, error) {
	buf := make([]byte, 32)
	n, err := unix.Getxattr(path, xattrName(), buf)
	if err != nil {
		if err == unix.ENODATA {
			return nil, nil
		}
		return nil, err
	}
	v, err := strconv.ParseUint(string(buf[:n]), 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func writeImpl(path string, epochSeconds uint64) error {
	return unix.Setxattr(path, xattrName(), []byte(strconv.FormatUint(epochSeconds, 10)), 0)
}
