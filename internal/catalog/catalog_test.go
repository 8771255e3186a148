package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/events"
	"github.com/beveiled/room237/internal/mediaprobe"
	"github.com/beveiled/room237/internal/phash"
	"github.com/beveiled/room237/internal/procrun"
	"github.com/beveiled/room237/internal/scheduler"
	"github.com/beveiled/room237/internal/sidecar"
	"github.com/beveiled/room237/internal/thumbnail"
)

// fakeRunner always reports a 64x64 video stream, so EnsureThumb and
// Extract both succeed without a real ffmpeg binary.
type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, bin string, args []string, timeout time.Duration) (*procrun.Result, error) {
	return &procrun.Result{Output: []byte("Stream #0:0: Video: mjpeg, 64x64\n"), ExitCode: 0}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Thumbnails: config.ThumbnailConfig{MaxDim: 480, ImageWebPQuality: 80, ImageWebPCompressionLvl: 4, LockPollMs: 5, Version: "v1"},
		Preload: config.PreloadConfig{
			ThumbWorkers: 1, MetaWorkers: 1, HashWorkers: 1,
			ProgressEmitMs:            10,
			MaxConcurrentSubprocesses: 4,
			LockReapInterval:          time.Hour,
			LockStaleAfter:            time.Hour,
		},
		Hash:       config.HashConfig{Cols: 8, Rows: 8, Bits: 64, Version: "v1", EffectiveThreshold: 5, UseThumbnailsFirst: false},
		Duplicates: config.DuplicatesConfig{MaxFilesPerAlbum: 2000},
		Album:      config.AlbumConfig{MoveRenameThumbsAndMeta: true, RenameCleanupDelaySecs: 0},
		Proc:       config.ProcConfig{MediaTool: "ffmpeg", ProbeTimeout: time.Second, ThumbnailTimeout: time.Second},
	}
}

func newTestService() *Service {
	cfg := testConfig()
	runner := fakeRunner{}
	extractor := mediaprobe.New(runner, cfg)
	thumbs := thumbnail.New(runner, cfg)
	hasher := phash.New(cfg, thumbs)
	sched := scheduler.New(cfg, events.NullSink{}, extractor, thumbs, hasher)
	return New(cfg, sched, thumbs, extractor)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListAlbumsWalksNestedAlbumsAndEnqueuesPreload(t *testing.T) {
	root := t.TempDir()
	vacation := filepath.Join(root, "vacation")
	beach := filepath.Join(vacation, "beach")
	if err := os.MkdirAll(beach, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(vacation, "a.jpg"))
	writeFile(t, filepath.Join(beach, "b.jpg"))

	s := newTestService()
	albums, err := s.ListAlbums(root)
	if err != nil {
		t.Fatalf("ListAlbums: %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("expected 2 albums, got %d (%+v)", len(albums), albums)
	}
	if albums[0].RelativePath != "vacation" || albums[1].RelativePath != "vacation/beach" {
		t.Fatalf("unexpected ordering: %+v", albums)
	}
	if albums[0].Size != 1 || albums[1].Size != 1 {
		t.Fatalf("unexpected sizes: %+v", albums)
	}
	if albums[1].Parent != "vacation" {
		t.Fatalf("expected beach's parent to be vacation, got %q", albums[1].Parent)
	}
}

func TestListAlbumsEmptyAlbumBorrowsDescendantThumb(t *testing.T) {
	root := t.TempDir()
	parent := filepath.Join(root, "trip")
	child := filepath.Join(parent, "day1")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(child, "a.jpg"))

	s := newTestService()
	albums, err := s.ListAlbums(root)
	if err != nil {
		t.Fatalf("ListAlbums: %v", err)
	}
	var parentAlbum Album
	for _, a := range albums {
		if a.RelativePath == "trip" {
			parentAlbum = a
		}
	}
	if parentAlbum.ThumbPath == "" {
		t.Fatal("expected the empty parent album to borrow a descendant thumbnail")
	}
}

func TestListAlbumMediaReturnsMetaForUnvisitedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))

	s := newTestService()
	s.Sched.SetActiveRoot(dir)
	entries, err := s.ListAlbumMedia(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListAlbumMedia: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.jpg" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Meta == "" {
		t.Fatal("expected a meta string for a file the scheduler had not visited")
	}
}

func TestListAlbumMediaUsesSidecarMetaWhenPresent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))
	if _, err := sidecar.WriteMeta(dir, "a.jpg", "123456"); err != nil {
		t.Fatal(err)
	}
	// Pre-create the artifact directories so artifactsMissing doesn't fire
	// a re-preload that could race the assertion below.
	if err := os.MkdirAll(filepath.Join(dir, sidecar.ThumbDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, sidecar.MetadataDirName), 0o755); err != nil {
		t.Fatal(err)
	}

	s := newTestService()
	s.Sched.SetActiveRoot(dir)
	entries, err := s.ListAlbumMedia(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListAlbumMedia: %v", err)
	}
	if len(entries) != 1 || entries[0].Meta != "123456" {
		t.Fatalf("expected the sidecar meta to be used verbatim, got %+v", entries)
	}
}

func TestListFavoritesCrossAlbumScan(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "vacation")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(album, "a.jpg"))
	writeFile(t, filepath.Join(album, "b.jpg"))
	if _, err := sidecar.WriteMeta(album, "a.jpg", "111"); err != nil {
		t.Fatal(err)
	}
	if _, err := sidecar.SetFavorite(album, "a.jpg", true); err != nil {
		t.Fatal(err)
	}

	s := newTestService()
	favs, err := s.ListFavorites(root)
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(favs) != 1 || favs[0].Name != "a.jpg" {
		t.Fatalf("expected exactly one favorite (a.jpg), got %+v", favs)
	}
	if favs[0].AlbumName != "vacation" {
		t.Fatalf("expected AlbumName vacation, got %q", favs[0].AlbumName)
	}
}

func TestAddMediaFilesInlineBytes(t *testing.T) {
	dir := t.TempDir()
	s := newTestService()

	added, err := s.AddMediaFiles(context.Background(), dir, []IncomingFile{
		{Name: "new.jpg", Data: []byte("bytes")},
	})
	if err != nil {
		t.Fatalf("AddMediaFiles: %v", err)
	}
	if len(added) != 1 || added[0].Name != "new.jpg" {
		t.Fatalf("expected new.jpg to be added, got %+v", added)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.jpg")); err != nil {
		t.Fatal("expected the file to exist on disk")
	}
}

func TestAddMediaFilesCopiesFromElsewhere(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "orig.jpg")
	writeFile(t, srcPath)

	s := newTestService()
	added, err := s.AddMediaFiles(context.Background(), dstDir, []IncomingFile{
		{Name: "orig.jpg", SourcePath: srcPath},
	})
	if err != nil {
		t.Fatalf("AddMediaFiles: %v", err)
	}
	if len(added) != 1 {
		t.Fatalf("expected one added entry, got %+v", added)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "orig.jpg")); err != nil {
		t.Fatal("expected the file to be copied into the destination")
	}
	if _, err := os.Stat(srcPath); err != nil {
		t.Fatal("expected the source file to remain untouched by a copy")
	}
}

func TestAddMediaFilesSkipsEmptyName(t *testing.T) {
	dir := t.TempDir()
	s := newTestService()
	added, err := s.AddMediaFiles(context.Background(), dir, []IncomingFile{
		{Name: "  ", Data: []byte("x")},
	})
	if err != nil {
		t.Fatalf("AddMediaFiles: %v", err)
	}
	if len(added) != 0 {
		t.Fatalf("expected no entries added for a blank name, got %+v", added)
	}
}

func TestMoveMediaRelocatesFileAndArtifacts(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a.jpg"))

	thumbDir := filepath.Join(srcDir, sidecar.ThumbDirName)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(thumbDir, "a.jpg.webp"))

	s := newTestService()
	newName, err := s.MoveMedia(srcDir, dstDir, "a.jpg")
	if err != nil {
		t.Fatalf("MoveMedia: %v", err)
	}
	if newName != "a.jpg" {
		t.Fatalf("expected the name to be preserved absent a collision, got %q", newName)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "a.jpg")); err != nil {
		t.Fatal("expected the media file to exist at the destination")
	}
	if _, err := os.Stat(filepath.Join(srcDir, "a.jpg")); !os.IsNotExist(err) {
		t.Fatal("expected the source file to be gone after the move")
	}
	if _, err := os.Stat(filepath.Join(dstDir, sidecar.ThumbDirName, "a.jpg.webp")); err != nil {
		t.Fatal("expected the thumbnail artifact to move alongside the media file")
	}
}

func TestMoveMediaMissingSource(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	s := newTestService()
	if _, err := s.MoveMedia(srcDir, dstDir, "missing.jpg"); err != ErrMissingSource {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
}

func TestRenameAlbumHappyPath(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "old-name")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}

	s := newTestService()
	renamed, err := s.RenameAlbum(root, "old-name", "new-name")
	if err != nil {
		t.Fatalf("RenameAlbum: %v", err)
	}
	if renamed.Name != "new-name" {
		t.Fatalf("expected name new-name, got %q", renamed.Name)
	}
	if _, err := os.Stat(filepath.Join(root, "new-name")); err != nil {
		t.Fatal("expected the renamed directory to exist")
	}
	if _, err := os.Stat(album); !os.IsNotExist(err) {
		t.Fatal("expected the old directory to be gone")
	}
}

func TestRenameAlbumRejectsFavoritesAlias(t *testing.T) {
	root := t.TempDir()
	s := newTestService()
	if _, err := s.RenameAlbum(root, "favorites", "whatever"); err != ErrFavoritesAlias {
		t.Fatalf("expected ErrFavoritesAlias, got %v", err)
	}
}

func TestRenameAlbumRejectsEmptyName(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "a")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}
	s := newTestService()
	if _, err := s.RenameAlbum(root, "a", "   "); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestRenameAlbumRejectsExistingDestination(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := newTestService()
	_, err := s.RenameAlbum(root, "a", "b")
	if err == nil {
		t.Fatal("expected an error when the destination already exists")
	}
}

func TestSetMediaFavoriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestService()
	entry, err := s.SetMediaFavorite(dir, "a.jpg", true)
	if err != nil {
		t.Fatalf("SetMediaFavorite: %v", err)
	}
	if !entry.Favorite {
		t.Fatal("expected Favorite to be true")
	}
}

func TestSetMediaTimestampRepacksShootBits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))

	s := newTestService()
	entries, err := s.SetMediaTimestamp(dir, []string{"a.jpg"}, 1700000000)
	if err != nil {
		t.Fatalf("SetMediaTimestamp: %v", err)
	}
	if len(entries) != 1 || entries[0].Meta == "" {
		t.Fatalf("expected a packed meta string, got %+v", entries)
	}
}

func TestRegisterMediaExtractsAndEnqueues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))

	s := newTestService()
	entry, err := s.RegisterMedia(context.Background(), dir, "a.jpg")
	if err != nil {
		t.Fatalf("RegisterMedia: %v", err)
	}
	if entry.Meta == "" {
		t.Fatal("expected a non-empty packed meta string")
	}
	rec, err := sidecar.ReadAlbumMeta(dir)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Files["a.jpg"].Meta == "" {
		t.Fatal("expected the sidecar to persist the extracted meta")
	}
}

func TestGetAlbumSizeSumsMediaBytesNonRecursively(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"))
	writeFile(t, filepath.Join(dir, "b.jpg"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	child := filepath.Join(dir, "child")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(child, "c.jpg"))

	s := newTestService()
	size, err := s.GetAlbumSize(dir)
	if err != nil {
		t.Fatalf("GetAlbumSize: %v", err)
	}
	if size != 2 {
		t.Fatalf("expected size 2 (a.jpg + b.jpg, one byte each), got %d", size)
	}
}

func TestRebuildThumbnailsCoversDirectChildrenOnly(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "vacation")
	nested := filepath.Join(album, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(album, "a.jpg"))
	writeFile(t, filepath.Join(nested, "b.jpg"))

	s := newTestService()
	written, err := s.RebuildThumbnails(context.Background(), root)
	if err != nil {
		t.Fatalf("RebuildThumbnails: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected exactly 1 thumbnail written (nested album is not a direct child of root), got %d", written)
	}
	if _, err := os.Stat(filepath.Join(album, sidecar.ThumbDirName)); err != nil {
		t.Fatal("expected the thumb directory to exist for the direct child album")
	}
}

func TestRebuildMetadataConvertsHEICAndExtractsDirectChildren(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "vacation")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(album, "a.jpg"))
	writeFile(t, filepath.Join(album, "b.heic"))

	s := newTestService()
	written, err := s.RebuildMetadata(context.Background(), root)
	if err != nil {
		t.Fatalf("RebuildMetadata: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected exactly 1 file with extracted metadata (the HEIC input only converts), got %d", written)
	}
	rec, err := sidecar.ReadAlbumMeta(album)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Files["a.jpg"].Meta == "" {
		t.Fatal("expected a.jpg's metadata to be re-extracted")
	}
}

func TestClearRoom237ArtifactsRemovesCurrentAndLegacyNames(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "vacation")
	if err := os.MkdirAll(filepath.Join(album, sidecar.ThumbDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(album, sidecar.MetadataDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(album, ".room237-meta.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestService()
	removed, err := s.ClearRoom237Artifacts(root)
	if err != nil {
		t.Fatalf("ClearRoom237Artifacts: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 artifacts removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(album, sidecar.ThumbDirName)); !os.IsNotExist(err) {
		t.Fatal("expected the thumb directory to be removed")
	}
	if _, err := os.Stat(filepath.Join(album, ".room237-meta.json")); !os.IsNotExist(err) {
		t.Fatal("expected the legacy meta file to be removed")
	}
}
