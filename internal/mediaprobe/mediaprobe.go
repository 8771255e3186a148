// Package mediaprobe derives packed file metadata (timestamps, dimensions,
// kind) from the filesystem, the container probe's stderr, and embedded
// image tags.
package mediaprobe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/beveiled/room237/internal/classify"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/embedtime"
	"github.com/beveiled/room237/internal/packedmeta"
	"github.com/beveiled/room237/internal/procrun"
)

// ErrProbeFailed wraps an unrecoverable probe error.
var ErrProbeFailed = errors.New("mediaprobe: probe failed")

var streamVideoLine = regexp.MustCompile(`Stream[^\n]*Video:[^\n]*`)
var dimensions = regexp.MustCompile(`(\d{2,5})x(\d{2,5})`)
var creationTimeLine = regexp.MustCompile(`creation_time\s*:\s*(\S+)`)

const exifLayout = "2006:01:02 15:04:05"

// Extractor computes packed metadata for a single media file.
type Extractor struct {
	Runner procrun.Runner
	Cfg    *config.Config
}

func New(runner procrun.Runner, cfg *config.Config) *Extractor {
	return &Extractor{Runner: runner, Cfg: cfg}
}

// CreationTime exposes the platform filesystem creation-time lookup to
// callers outside this package that need the same best-effort value
// (the catalog's synthesized media entries).
func CreationTime(info os.FileInfo) (int64, bool) {
	return creationTime(info)
}

// Extract runs the full algorithm described for get_file_metadata and
// returns the packed wire string.
func (x *Extractor) Extract(ctx context.Context, path string) (string, error) {
	name := path
	f := packedmeta.Fields{
		IsImage: classify.IsImage(name),
		IsVideo: classify.IsVideo(name),
	}

	if info, err := os.Stat(path); err == nil {
		if added, ok := creationTime(info); ok {
			f.AddedEpoch = uint64(added)
			f.AddedSet = true
		}
	}

	if shoot, ok := x.shootEpoch(ctx, path); ok {
		f.ShootEpoch = uint64(shoot)
		f.ShootSet = true
	}

	if f.IsImage || f.IsVideo {
		if w, h, ok := x.probeDimensions(ctx, path); ok {
			f.Width, f.WidthSet = w, true
			f.Height, f.HeightSet = h, true
		}
	}

	return packedmeta.Pack(f), nil
}

// shootEpoch tries, in order: the embedded-timestamp sidechannel, the
// container probe's creation_time, then image EXIF tags.
func (x *Extractor) shootEpoch(ctx context.Context, path string) (int64, bool) {
	if ts, err := embedtime.Read(path); err == nil && ts != nil {
		return int64(*ts), true
	}

	if x.Cfg.Metadata.ParseCreationTime {
		if ts, ok := x.probeCreationTime(ctx, path); ok {
			return ts, true
		}
	}

	if ts, ok := exifDateTime(path); ok {
		return ts, true
	}

	return 0, false
}

// probe runs the media tool against path with -hide_banner and returns its
// combined output. The container tool writes stream and format info to
// stderr, which procrun captures regardless of exit status.
func (x *Extractor) probe(ctx context.Context, path string) ([]byte, error) {
	res, err := x.Runner.Run(ctx, x.Cfg.Proc.MediaTool, []string{"-i", path, "-hide_banner"}, x.Cfg.Proc.ProbeTimeout)
	if res == nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	// ffmpeg -i with no output file exits non-zero by design; the probe
	// output we need is in stderr regardless.
	return res.Output, nil
}

func (x *Extractor) probeDimensions(ctx context.Context, path string) (uint32, uint32, bool) {
	out, err := x.probe(ctx, path)
	if err != nil {
		return 0, 0, false
	}
	line := streamVideoLine.FindString(string(out))
	if line == "" {
		return 0, 0, false
	}
	m := dimensions.FindStringSubmatch(line)
	if len(m) != 3 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseUint(m[1], 10, 32)
	h, err2 := strconv.ParseUint(m[2], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(w), uint32(h), true
}

func (x *Extractor) probeCreationTime(ctx context.Context, path string) (int64, bool) {
	out, err := x.probe(ctx, path)
	if err != nil {
		return 0, false
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := creationTimeLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		return t.Unix(), true
	}
	return 0, false
}

func exifDateTime(path string) (int64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 0, false
	}

	for _, tag := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		t, err := x.Get(tag)
		if err != nil {
			continue
		}
		s, err := t.StringVal()
		if err != nil {
			continue
		}
		parsed, err := time.Parse(exifLayout, s)
		if err != nil {
			continue
		}
		return parsed.UTC().Unix(), true
	}
	return 0, false
}
