package mediaprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/packedmeta"
	"github.com/beveiled/room237/internal/procrun"
)

// fakeRunner returns a canned probe output regardless of the binary/args it
// is asked to run, so tests never shell out to a real ffmpeg/ffprobe.
type fakeRunner struct {
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args []string, timeout time.Duration) (*procrun.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &procrun.Result{Output: f.output, ExitCode: 0}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Proc: config.ProcConfig{
			MediaTool:        "ffmpeg",
			ProbeTimeout:     time.Second,
			ThumbnailTimeout: time.Second,
		},
		Metadata: config.MetadataConfig{ParseCreationTime: true},
	}
}

func TestProbeDimensionsParsesVideoStreamLine(t *testing.T) {
	out := []byte("Input #0, mov,mp4,m4a...\n" +
		"  Stream #0:0(und): Video: h264 (High), yuv420p, 1920x1080, 30 fps\n" +
		"  Stream #0:1(und): Audio: aac\n")
	x := New(&fakeRunner{output: out}, testConfig())

	w, h, ok := x.probeDimensions(context.Background(), "clip.mp4")
	if !ok {
		t.Fatal("expected dimensions to be found")
	}
	if w != 1920 || h != 1080 {
		t.Fatalf("got %dx%d, want 1920x1080", w, h)
	}
}

func TestProbeDimensionsMissingVideoStream(t *testing.T) {
	out := []byte("Input #0, wav\n  Stream #0:0: Audio: pcm_s16le\n")
	x := New(&fakeRunner{output: out}, testConfig())

	if _, _, ok := x.probeDimensions(context.Background(), "sound.wav"); ok {
		t.Fatal("did not expect dimensions for an audio-only stream")
	}
}

func TestProbeCreationTimeParsesRFC3339(t *testing.T) {
	out := []byte("    Metadata:\n      creation_time   : 2023-05-01T12:00:00.000000Z\n")
	x := New(&fakeRunner{output: out}, testConfig())

	ts, ok := x.probeCreationTime(context.Background(), "clip.mp4")
	if !ok {
		t.Fatal("expected a creation_time to be found")
	}
	want := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC).Unix()
	if ts != want {
		t.Fatalf("got %d, want %d", ts, want)
	}
}

func TestProbeCreationTimeAbsent(t *testing.T) {
	out := []byte("Input #0, mov\n  Duration: 00:00:05.00\n")
	x := New(&fakeRunner{output: out}, testConfig())

	if _, ok := x.probeCreationTime(context.Background(), "clip.mp4"); ok {
		t.Fatal("did not expect a creation_time")
	}
}

func TestShootEpochSkipsProbeWhenParseCreationTimeDisabled(t *testing.T) {
	out := []byte("creation_time   : 2023-05-01T12:00:00.000000Z\n")
	cfg := testConfig()
	cfg.Metadata.ParseCreationTime = false
	x := New(&fakeRunner{output: out}, cfg)

	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := x.shootEpoch(context.Background(), path); ok {
		t.Fatal("did not expect a shoot epoch when ParseCreationTime is disabled and no embedded/EXIF time exists")
	}
}

func TestExtractImageSetsKindAndDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := []byte("Stream #0:0: Video: mjpeg, yuvj420p, 640x480\n")
	x := New(&fakeRunner{output: out}, testConfig())

	packed, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	f, err := packedmeta.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !f.IsImage || f.IsVideo {
		t.Fatalf("expected IsImage=true IsVideo=false, got %+v", f)
	}
	if !f.WidthSet || !f.HeightSet || f.Width != 640 || f.Height != 480 {
		t.Fatalf("expected dimensions 640x480, got %+v", f)
	}
	if !f.AddedSet {
		t.Fatal("expected AddedSet from the filesystem stat")
	}
}

func TestExtractVideoSetsKindAndDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := []byte("Stream #0:0: Video: h264, yuv420p, 1280x720\n")
	x := New(&fakeRunner{output: out}, testConfig())

	packed, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	f, err := packedmeta.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if f.IsImage || !f.IsVideo {
		t.Fatalf("expected IsImage=false IsVideo=true, got %+v", f)
	}
	if !f.WidthSet || !f.HeightSet || f.Width != 1280 || f.Height != 720 {
		t.Fatalf("expected dimensions 1280x720, got %+v", f)
	}
}

func TestExtractNonMediaSkipsDimensionProbe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	x := New(&fakeRunner{output: []byte("Stream #0:0: Video: mjpeg, 10x10\n")}, testConfig())
	packed, err := x.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	f, err := packedmeta.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if f.IsImage || f.IsVideo || f.WidthSet || f.HeightSet {
		t.Fatalf("expected no kind or dimensions for a non-media file, got %+v", f)
	}
}

func TestProbePropagatesSpawnFailure(t *testing.T) {
	x := New(&fakeRunner{err: procrun.ErrSpawn}, testConfig())
	if _, _, ok := x.probeDimensions(context.Background(), "clip.mp4"); ok {
		t.Fatal("expected probeDimensions to fail when the runner cannot spawn")
	}
}
