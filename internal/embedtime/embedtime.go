// Package embedtime stores a user-authoritative shoot timestamp on the
// media file itself, independent of the sidecar, so moving or renaming the
// file preserves it. Backend is selected per OS at build time.
package embedtime

import "errors"

// ErrUnsupported is returned on platforms with neither an xattr nor an
// ADS backend.
var ErrUnsupported = errors.New("embedtime: unsupported platform")

// AttrName is the reserved key used on every supported backend.
const AttrName = "room237.shoot_time"

// Read returns the embedded timestamp (seconds since epoch), or nil if
// none is set.
func Read(path string) (*uint64, error) {
	return readImpl(path)
}

// Write sets the embedded timestamp.
func Write(path string, epochSeconds uint64) error {
	return writeImpl(path, epochSeconds)
}
