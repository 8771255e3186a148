// Package classify holds the path and filename predicates shared by every
// other room237 component: which files are media, which directories are
// albums, and how to mint a collision-free filename.
package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReservedPrefix marks directories owned by room237 itself; every walker
// must skip children whose name starts with it.
const ReservedPrefix = ".room237-"

var imageExt = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
	"avif": true, "gif": true, "bmp": true,
}

var videoExt = map[string]bool{
	"mp4": true, "mov": true, "mkv": true, "webm": true,
	"avi": true, "flv": true, "m4v": true,
}

var heicExt = map[string]bool{
	"heic": true,
}

func ext(name string) string {
	e := filepath.Ext(name)
	if e == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// IsImage reports whether name's extension belongs to IMAGE_EXT.
func IsImage(name string) bool { return imageExt[ext(name)] }

// IsVideo reports whether name's extension belongs to VIDEO_EXT.
func IsVideo(name string) bool { return videoExt[ext(name)] }

// IsHEIC reports whether name's extension belongs to HEIC_EXT, the
// inputs-to-convert class.
func IsHEIC(name string) bool { return heicExt[ext(name)] }

// IsMedia reports whether name is a file the pipeline cares about at all:
// an image, a video, or a HEIC input awaiting conversion.
func IsMedia(name string) bool { return IsImage(name) || IsVideo(name) || IsHEIC(name) }

// IsAlbumDir reports whether p is a directory that is not a room237
// reserved directory.
func IsAlbumDir(p string) bool {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return false
	}
	return !strings.HasPrefix(filepath.Base(p), ReservedPrefix)
}

// UniqueFilename returns a filename that does not currently exist in dir,
// derived from name by appending (or continuing) a numeric suffix.
func UniqueFilename(dir, name string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		if os.IsNotExist(err) {
			return name, nil
		}
		return "", err
	}

	e := filepath.Ext(name)
	stem := strings.TrimSuffix(name, e)

	start := 1
	if idx := strings.LastIndex(stem, "_"); idx >= 0 {
		if n, err := strconv.Atoi(stem[idx+1:]); err == nil {
			stem = stem[:idx]
			start = n + 1
		}
	}

	for n := start; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, e)
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			if os.IsNotExist(err) {
				return candidate, nil
			}
			return "", err
		}
	}
}
