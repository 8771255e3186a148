// Package thumbnail produces fixed-max-dimension WebP thumbnails for
// images and single-frame video stills, guaranteeing at most one
// subprocess invocation per (path, thumb_version) pair across concurrent
// callers via a lock file.
package thumbnail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beveiled/room237/internal/classify"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/procrun"
	"github.com/beveiled/room237/internal/sidecar"
)

// Generator generates and caches thumbnails.
type Generator struct {
	Runner procrun.Runner
	Cfg    *config.Config
}

func New(runner procrun.Runner, cfg *config.Config) *Generator {
	return &Generator{Runner: runner, Cfg: cfg}
}

// ThumbPath returns the on-disk path for original's thumbnail under
// thumbDir.
func ThumbPath(original, thumbDir string) string {
	return filepath.Join(thumbDir, filepath.Base(original)+".webp")
}

func lockPath(thumb string) string {
	return thumb + ".lock"
}

// isFresh mirrors the §3 freshness invariant: exists, mtime >= media
// mtime, and sidecar thumb_version matches the current configured version.
func isFresh(thumb, original string, entry sidecar.FileMetaEntry, version string) bool {
	thumbInfo, err := os.Stat(thumb)
	if err != nil {
		return false
	}
	origInfo, err := os.Stat(original)
	if err != nil {
		return false
	}
	if thumbInfo.ModTime().Before(origInfo.ModTime()) {
		return false
	}
	return entry.ThumbVersion == version
}

// EnsureThumb is the single-writer ensure_thumb algorithm: freshness
// check, atomic lock-file acquisition with create-new semantics, poll
// retry re-checking freshness, unconditional lock removal, version write
// on success.
func (g *Generator) EnsureThumb(ctx context.Context, albumDir, path string) (string, error) {
	thumbDir := filepath.Join(albumDir, sidecar.ThumbDirName)
	thumb := ThumbPath(path, thumbDir)
	name := filepath.Base(path)
	version := g.Cfg.Thumbnails.Version

	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		return "", err
	}
	entry := rec.Files[name]

	if isFresh(thumb, path, entry, version) {
		return thumb, nil
	}

	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return "", err
	}

	lock := lockPath(thumb)
	for {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return "", err
		}
		rec, rerr := sidecar.ReadAlbumMeta(albumDir)
		if rerr == nil {
			entry = rec.Files[name]
			if isFresh(thumb, path, entry, version) {
				return thumb, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(g.Cfg.Thumbnails.LockPollMs) * time.Millisecond):
		}
	}

	// A previous lock holder may have finished between the last freshness
	// check and this caller taking the lock.
	if rec, rerr := sidecar.ReadAlbumMeta(albumDir); rerr == nil && isFresh(thumb, path, rec.Files[name], version) {
		_ = os.Remove(lock)
		return thumb, nil
	}

	genErr := g.generate(ctx, path, thumb)
	if genErr != nil {
		_ = os.Remove(lock)
		_, _ = sidecar.MarkThumbFailed(albumDir, name)
		return "", genErr
	}

	_, werr := sidecar.WriteThumbVersion(albumDir, name, version)
	_ = os.Remove(lock)
	if werr != nil {
		return "", werr
	}
	return thumb, nil
}

// heicDerivativePath returns the sibling JPEG derivative path for a HEIC
// input, which becomes the canonical media file for every downstream
// stage once it exists.
func heicDerivativePath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + ".jpeg"
}

// ConvertHEIC runs the media tool to produce the JPEG derivative of a
// HEIC input, skipping the invocation entirely if a fresher derivative
// already exists on disk.
func (g *Generator) ConvertHEIC(ctx context.Context, src string) (string, error) {
	dst := heicDerivativePath(src)

	if dstInfo, err := os.Stat(dst); err == nil {
		if srcInfo, err := os.Stat(src); err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime()) {
			return dst, nil
		}
	}

	args := []string{"-i", src, "-y", "-map_metadata", "0", dst}
	res, err := g.Runner.Run(ctx, g.Cfg.Proc.MediaTool, args, g.Cfg.Proc.ThumbnailTimeout)
	if err := checkResult(res, err, "heic", src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (g *Generator) generate(ctx context.Context, input, output string) error {
	switch {
	case classify.IsImage(input):
		return g.generateImage(ctx, input, output)
	case classify.IsVideo(input):
		return g.generateVideo(ctx, input, output)
	default:
		return fmt.Errorf("thumbnail: unsupported file class for %s", input)
	}
}

func (g *Generator) scaleFilter() string {
	d := g.Cfg.Thumbnails.MaxDim
	return fmt.Sprintf("scale=min(iw\\,%d):min(ih\\,%d):force_original_aspect_ratio=decrease", d, d)
}

func (g *Generator) generateImage(ctx context.Context, input, output string) error {
	args := []string{
		"-i", input, "-y",
		"-vf", g.scaleFilter(),
		"-c:v", "libwebp",
		"-q:v", fmt.Sprint(g.Cfg.Thumbnails.ImageWebPQuality),
		"-compression_level", fmt.Sprint(g.Cfg.Thumbnails.ImageWebPCompressionLvl),
		output,
	}
	res, err := g.Runner.Run(ctx, g.Cfg.Proc.MediaTool, args, g.Cfg.Proc.ThumbnailTimeout)
	return checkResult(res, err, "image", input, output)
}

func (g *Generator) generateVideo(ctx context.Context, input, output string) error {
	seek := g.Cfg.Thumbnails.VideoSeekSeconds
	if seek < 0 {
		seek = 0
	}
	args := []string{
		"-i", input,
		"-ss", fmt.Sprintf("%.3f", seek),
		"-y", "-frames:v", "1",
		"-vf", g.scaleFilter(),
		output,
	}
	res, err := g.Runner.Run(ctx, g.Cfg.Proc.MediaTool, args, g.Cfg.Proc.ThumbnailTimeout)
	return checkResult(res, err, "video", input, output)
}

func checkResult(res *procrun.Result, err error, kind, input, output string) error {
	if err != nil {
		return fmt.Errorf("thumbnail: %s %s->%s: %w", kind, input, output, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("thumbnail: %s %s->%s: exit %d", kind, input, output, res.ExitCode)
	}
	return nil
}
