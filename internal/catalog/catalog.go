// Package catalog implements the album catalog service (C8): listing
// albums and their media, favoriting, moving/renaming media and albums,
// and registering externally-dropped files into the preload pipeline.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beveiled/room237/internal/classify"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/embedtime"
	"github.com/beveiled/room237/internal/mediaprobe"
	"github.com/beveiled/room237/internal/packedmeta"
	"github.com/beveiled/room237/internal/scheduler"
	"github.com/beveiled/room237/internal/sidecar"
	"github.com/beveiled/room237/internal/thumbnail"
)

var (
	ErrBadDirs        = errors.New("catalog: source or target is not a directory")
	ErrMissingSource  = errors.New("catalog: source file is absent")
	ErrEmptyAlbumID   = errors.New("catalog: album id is required")
	ErrFavoritesAlias = errors.New("catalog: cannot rename the favorites alias")
	ErrEmptyName      = errors.New("catalog: album name cannot be empty")
	ErrAlbumEscape    = errors.New("catalog: album path escapes root")
	ErrAlbumExists    = errors.New("catalog: album already exists at destination")
)

// favoritesAlias is the reserved album id the front end uses to address
// the cross-album favorites view; it never names a real directory.
const favoritesAlias = "favorites"

type Service struct {
	Cfg       *config.Config
	Sched     *scheduler.Scheduler
	Thumbs    *thumbnail.Generator
	Extractor *mediaprobe.Extractor
}

func New(cfg *config.Config, sched *scheduler.Scheduler, thumbs *thumbnail.Generator, extractor *mediaprobe.Extractor) *Service {
	return &Service{Cfg: cfg, Sched: sched, Thumbs: thumbs, Extractor: extractor}
}

// Album is a single catalog entry as returned to the front end.
type Album struct {
	AbsolutePath string `json:"absolutePath"`
	Name         string `json:"name"`
	ThumbPath    string `json:"thumbPath,omitempty"`
	Size         int    `json:"size"`
	RelativePath string `json:"relativePath"`
	Parent       string `json:"parent,omitempty"`
}

// MediaEntry is a single file within an album.
type MediaEntry struct {
	Meta     string `json:"meta"`
	Name     string `json:"name"`
	Favorite bool   `json:"favorite,omitempty"`
}

// FavoriteEntry is a MediaEntry annotated with its owning album.
type FavoriteEntry struct {
	Meta      string `json:"meta"`
	Name      string `json:"name"`
	AlbumPath string `json:"albumPath"`
	AlbumName string `json:"albumName"`
	AlbumID   string `json:"albumId"`
}

type albumDirEntry struct {
	path         string
	name         string
	relativePath string
	parent       string
}

func normalizedRel(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// walkAlbumPaths performs the same depth-first, pre-order walk as
// original_source's walk_album_paths, descending only into directories
// that pass classify.IsAlbumDir.
func walkAlbumPaths(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	var albums []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if !classify.IsAlbumDir(path) {
				continue
			}
			albums = append(albums, path)
			if err := walk(path); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return albums, nil
}

func walkAlbumEntries(root string) ([]albumDirEntry, error) {
	paths, err := walkAlbumPaths(root)
	if err != nil {
		return nil, err
	}
	var entries []albumDirEntry
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		rel = normalizedRel(rel)
		parent := normalizedRel(filepath.Dir(rel))
		if parent == "." {
			parent = ""
		}
		entries = append(entries, albumDirEntry{
			path:         p,
			name:         filepath.Base(p),
			relativePath: rel,
			parent:       parent,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].relativePath < entries[j].relativePath })
	return entries, nil
}

func mediaFilesForAlbum(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || classify.IsHEIC(e.Name()) {
			continue
		}
		if classify.IsImage(e.Name()) || classify.IsVideo(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// ListAlbums implements list_albums.
func (s *Service) ListAlbums(root string) ([]Album, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	s.Sched.SetActiveRoot(root)

	entries, err := walkAlbumEntries(root)
	if err != nil {
		return nil, err
	}
	mediaByEntry := make([][]string, len(entries))
	for i, e := range entries {
		files, err := mediaFilesForAlbum(e.path)
		if err != nil {
			return nil, err
		}
		mediaByEntry[i] = files
	}

	var albums []Album
	for i, e := range entries {
		thumbDir := filepath.Join(e.path, sidecar.ThumbDirName)
		_ = os.MkdirAll(thumbDir, 0o755)

		thumbFiles, _ := os.ReadDir(thumbDir)
		var thumb string
		if len(thumbFiles) > 0 {
			thumb = filepath.Join(thumbDir, thumbFiles[0].Name())
		} else if len(mediaByEntry[i]) > 0 {
			if tp, err := s.Thumbs.EnsureThumb(context.Background(), e.path, mediaByEntry[i][0]); err == nil {
				thumb = tp
			}
		} else {
			thumb = s.descendantThumb(entries, mediaByEntry, i)
		}

		albums = append(albums, Album{
			AbsolutePath: e.path,
			Name:         e.name,
			ThumbPath:    thumb,
			Size:         len(mediaByEntry[i]),
			RelativePath: e.relativePath,
			Parent:       e.parent,
		})

		s.Sched.EnqueuePreload(e.path)
	}

	sort.Slice(albums, func(i, j int) bool { return albums[i].RelativePath < albums[j].RelativePath })
	return albums, nil
}

// descendantThumb borrows a thumbnail from the first descendant album
// that has media, matching the teacher's fallback for empty albums.
func (s *Service) descendantThumb(entries []albumDirEntry, mediaByEntry [][]string, idx int) string {
	prefix := entries[idx].relativePath + "/"
	for j := idx + 1; j < len(entries); j++ {
		if !strings.HasPrefix(entries[j].relativePath, prefix) {
			break
		}
		if len(mediaByEntry[j]) == 0 {
			continue
		}
		childThumbDir := filepath.Join(entries[j].path, sidecar.ThumbDirName)
		_ = os.MkdirAll(childThumbDir, 0o755)
		if tp, err := s.Thumbs.EnsureThumb(context.Background(), entries[j].path, mediaByEntry[j][0]); err == nil {
			return tp
		}
		break
	}
	return ""
}

// artifactsMissing reports whether either sidecar artifact directory is
// absent. ListAlbumMedia then queues the album for preload without
// waiting for it; the scheduler ignores that request for an album it has
// already marked preloaded.
func artifactsMissing(dir string) bool {
	for _, name := range []string{sidecar.ThumbDirName, sidecar.MetadataDirName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return true
		}
	}
	return false
}

// ListAlbumMedia implements list_album_media.
func (s *Service) ListAlbumMedia(ctx context.Context, dir string) ([]MediaEntry, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if artifactsMissing(dir) {
		s.Sched.CancelCurrentAlbum()
		s.Sched.EnqueuePreload(dir)
	}

	mediaFiles, err := mediaFilesForAlbum(dir)
	if err != nil {
		return nil, err
	}

	s.Sched.EnsureAlbumMedia(ctx, dir, mediaFiles)

	rec, err := sidecar.ReadAlbumMeta(dir)
	if err != nil {
		return nil, err
	}

	var entries []MediaEntry
	for _, path := range mediaFiles {
		name := filepath.Base(path)
		fe, ok := rec.Files[name]
		if ok && fe.Meta != "" {
			entries = append(entries, MediaEntry{Meta: fe.Meta, Name: name, Favorite: fe.Favorite})
			continue
		}

		entries = append(entries, MediaEntry{Meta: synthesizeMeta(path), Name: name, Favorite: fe.Favorite})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// synthesizeMeta builds a best-effort packed record from file
// creation time and extension class alone, for files the scheduler
// has not yet visited.
func synthesizeMeta(path string) string {
	info, err := os.Stat(path)
	f := packedmeta.Fields{
		IsImage: classify.IsImage(path),
		IsVideo: classify.IsVideo(path),
	}
	if err == nil {
		if ct, ok := mediaprobe.CreationTime(info); ok {
			f.AddedEpoch, f.AddedSet = uint64(ct), true
		}
	}
	return packedmeta.Pack(f)
}

// ListFavorites implements list_favorites.
func (s *Service) ListFavorites(root string) ([]FavoriteEntry, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	entries, err := walkAlbumEntries(root)
	if err != nil {
		return nil, err
	}

	var favorites []FavoriteEntry
	for _, album := range entries {
		rec, err := sidecar.ReadAlbumMeta(album.path)
		if err != nil || len(rec.Files) == 0 {
			continue
		}

		for name, fe := range rec.Files {
			if !fe.Favorite {
				continue
			}
			mediaPath := filepath.Join(album.path, name)
			if _, err := os.Stat(mediaPath); err != nil {
				continue
			}
			meta := fe.Meta
			if meta == "" {
				meta = synthesizeMeta(mediaPath)
			}
			favorites = append(favorites, FavoriteEntry{
				Meta:      meta,
				Name:      name,
				AlbumPath: album.path,
				AlbumName: album.relativePath,
				AlbumID:   album.relativePath,
			})
		}
	}

	sort.Slice(favorites, func(i, j int) bool {
		if favorites[i].AlbumName != favorites[j].AlbumName {
			return favorites[i].AlbumName < favorites[j].AlbumName
		}
		return favorites[i].Name < favorites[j].Name
	})
	return favorites, nil
}

// RegisterMedia implements register_media for a single file that was
// created externally: it runs C5 and C4 for the file, queues the album
// for background preload, then returns its refreshed entry. It does not
// run C6 for the file itself, and the preload request is ignored for an
// album the scheduler has already marked preloaded.
func (s *Service) RegisterMedia(ctx context.Context, albumDir, name string) (MediaEntry, error) {
	path := filepath.Join(albumDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return MediaEntry{}, fmt.Errorf("%s is not a file", path)
	}

	thumbDir := filepath.Join(albumDir, sidecar.ThumbDirName)
	_ = os.MkdirAll(thumbDir, 0o755)
	_, _ = s.Thumbs.EnsureThumb(ctx, albumDir, path)

	packed, err := s.Extractor.Extract(ctx, path)
	if err != nil {
		return MediaEntry{}, err
	}
	if _, err := sidecar.WriteMeta(albumDir, name, packed); err != nil {
		return MediaEntry{}, err
	}

	s.Sched.EnqueuePreload(albumDir)

	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		return MediaEntry{}, err
	}
	fe := rec.Files[name]
	return MediaEntry{Meta: packed, Name: name, Favorite: fe.Favorite}, nil
}

// IncomingFile describes one file add_media_files is asked to place
// into an album: reused in place, copied from elsewhere, or written
// from inline bytes.
type IncomingFile struct {
	Name       string
	SourcePath string
	Data       []byte
}

// AddMediaFiles implements add_media_files. Partial failures are
// skipped; successfully registered entries are returned.
func (s *Service) AddMediaFiles(ctx context.Context, dir string, files []IncomingFile) ([]MediaEntry, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	_ = os.MkdirAll(filepath.Join(dir, sidecar.ThumbDirName), 0o755)

	var added []MediaEntry
	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			continue
		}

		targetName := name
		dest := filepath.Join(dir, targetName)
		usedExisting := false

		switch {
		case file.SourcePath != "":
			if filepath.Dir(file.SourcePath) == dir {
				targetName = filepath.Base(file.SourcePath)
				dest = file.SourcePath
				usedExisting = true
			} else {
				targetName, err = classify.UniqueFilename(dir, name)
				if err != nil {
					continue
				}
				dest = filepath.Join(dir, targetName)
				if err := copyFile(file.SourcePath, dest); err != nil {
					continue
				}
			}
		case file.Data != nil:
			targetName, err = classify.UniqueFilename(dir, name)
			if err != nil {
				continue
			}
			dest = filepath.Join(dir, targetName)
			if err := writeFileAtomic(dest, file.Data); err != nil {
				continue
			}
		default:
			continue
		}

		if !usedExisting {
			if info, err := os.Stat(dest); err != nil || info.IsDir() {
				continue
			}
		}

		entry, err := s.RegisterMedia(ctx, dir, targetName)
		if err != nil {
			continue
		}
		added = append(added, entry)
	}
	return added, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// writeFileAtomic writes inline-byte uploads via a uuid-suffixed temp
// file in the same directory, then renames it into place, so a reader
// never observes a partially-written media file.
func writeFileAtomic(dest string, data []byte) error {
	tmp := dest + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// MoveMedia implements move_media.
func (s *Service) MoveMedia(sourceDir, targetDir, name string) (string, error) {
	srcInfo, srcErr := os.Stat(sourceDir)
	tgtInfo, tgtErr := os.Stat(targetDir)
	if srcErr != nil || !srcInfo.IsDir() || tgtErr != nil || !tgtInfo.IsDir() {
		return "", ErrBadDirs
	}

	sourceFile := filepath.Join(sourceDir, name)
	if info, err := os.Stat(sourceFile); err != nil || info.IsDir() {
		return "", ErrMissingSource
	}

	targetName, err := classify.UniqueFilename(targetDir, filepath.Base(name))
	if err != nil {
		return "", err
	}
	targetFile := filepath.Join(targetDir, targetName)
	if err := os.Rename(sourceFile, targetFile); err != nil {
		return "", err
	}

	if s.Cfg.Album.MoveRenameThumbsAndMeta {
		s.moveArtifacts(sourceDir, targetDir, filepath.Base(name), targetName)
	}
	return targetName, nil
}

func (s *Service) moveArtifacts(sourceDir, targetDir, sourceName, targetName string) {
	srcThumb := filepath.Join(sourceDir, sidecar.ThumbDirName, sourceName+".webp")
	if _, err := os.Stat(srcThumb); err == nil {
		tgtThumbDir := filepath.Join(targetDir, sidecar.ThumbDirName)
		_ = os.MkdirAll(tgtThumbDir, 0o755)
		_ = os.Rename(srcThumb, filepath.Join(tgtThumbDir, targetName+".webp"))
	}

	srcMeta := filepath.Join(sourceDir, sidecar.MetadataDirName, sourceName+".meta")
	if _, err := os.Stat(srcMeta); err == nil {
		tgtMetaDir := filepath.Join(targetDir, sidecar.MetadataDirName)
		_ = os.MkdirAll(tgtMetaDir, 0o755)
		_ = os.Rename(srcMeta, filepath.Join(tgtMetaDir, targetName+".meta"))
	}
}

// RenamedAlbum is the result of a successful rename_album call.
type RenamedAlbum struct {
	OldPath         string
	NewPath         string
	OldRelativePath string
	NewRelativePath string
	Parent          string
	Name            string
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// RenameAlbum implements rename_album.
func (s *Service) RenameAlbum(root, albumID, newName string) (RenamedAlbum, error) {
	if strings.TrimSpace(albumID) == "" {
		return RenamedAlbum{}, ErrEmptyAlbumID
	}
	if strings.EqualFold(albumID, favoritesAlias) {
		return RenamedAlbum{}, ErrFavoritesAlias
	}
	trimmed := strings.TrimSpace(newName)
	if trimmed == "" {
		return RenamedAlbum{}, ErrEmptyName
	}
	safeName := nameReplacer.Replace(trimmed)

	normalizedRoot, err := filepath.Abs(root)
	if err != nil {
		return RenamedAlbum{}, err
	}
	if info, err := os.Stat(normalizedRoot); err != nil || !info.IsDir() {
		return RenamedAlbum{}, fmt.Errorf("%s is not a directory", root)
	}

	target, err := filepath.Abs(filepath.Join(normalizedRoot, albumID))
	if err != nil {
		return RenamedAlbum{}, err
	}
	if _, err := os.Stat(target); err != nil {
		return RenamedAlbum{}, fmt.Errorf("album not found")
	}
	rel, err := filepath.Rel(normalizedRoot, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return RenamedAlbum{}, ErrAlbumEscape
	}

	parentDir := filepath.Dir(target)
	currentName := filepath.Base(target)

	if currentName == safeName {
		return s.sameNameResult(normalizedRoot, target, parentDir, safeName)
	}

	newPath := filepath.Join(parentDir, safeName)
	if _, err := os.Stat(newPath); err == nil {
		return RenamedAlbum{}, fmt.Errorf("%w: %q already exists in %s", ErrAlbumExists, safeName, parentDir)
	}

	if err := os.Rename(target, newPath); err != nil {
		return RenamedAlbum{}, err
	}
	s.Sched.CancelCurrentAlbum()

	if s.Cfg.Album.RenameCleanupDelaySecs > 0 {
		delay := time.Duration(s.Cfg.Album.RenameCleanupDelaySecs) * time.Second
		go s.cleanupAfterRename(target, newPath, delay)
	}

	oldRel, _ := filepath.Rel(normalizedRoot, target)
	newRel, _ := filepath.Rel(normalizedRoot, newPath)
	parentRel := ""
	if parentDir != normalizedRoot {
		parentRel, _ = filepath.Rel(normalizedRoot, parentDir)
	}

	return RenamedAlbum{
		OldPath:         target,
		NewPath:         newPath,
		OldRelativePath: normalizedRel(oldRel),
		NewRelativePath: normalizedRel(newRel),
		Parent:          normalizedRel(parentRel),
		Name:            safeName,
	}, nil
}

func (s *Service) sameNameResult(root, target, parentDir, safeName string) (RenamedAlbum, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return RenamedAlbum{}, err
	}
	parentRel := ""
	if parentDir != root {
		parentRel, _ = filepath.Rel(root, parentDir)
	}
	rel = normalizedRel(rel)
	return RenamedAlbum{
		OldPath:         target,
		NewPath:         target,
		OldRelativePath: rel,
		NewRelativePath: rel,
		Parent:          normalizedRel(parentRel),
		Name:            safeName,
	}, nil
}

// cleanupAfterRename sweeps the vacated directory after the configured
// delay, removing it only if it is still present and now empty — it
// may have been repopulated by a concurrent operation in the meantime.
func (s *Service) cleanupAfterRename(oldPath, newPath string, delay time.Duration) {
	time.Sleep(delay)
	if oldPath == newPath {
		return
	}
	entries, err := os.ReadDir(oldPath)
	if err != nil {
		return
	}
	if len(entries) == 0 {
		_ = os.RemoveAll(oldPath)
	}
}

// SetMediaFavorite implements set_media_favorite.
func (s *Service) SetMediaFavorite(albumDir, name string, favorite bool) (MediaEntry, error) {
	fe, err := sidecar.SetFavorite(albumDir, name, favorite)
	if err != nil {
		return MediaEntry{}, err
	}
	return MediaEntry{Meta: fe.Meta, Name: name, Favorite: fe.Favorite}, nil
}

// SetMediaTimestamp implements set_media_timestamp: writes the sidecar
// shoot time, the embedded-timestamp sidechannel, and repacks the
// meta.shoot bits for every named file.
func (s *Service) SetMediaTimestamp(albumDir string, names []string, timestamp int64) ([]MediaEntry, error) {
	var out []MediaEntry
	for _, name := range names {
		path := filepath.Join(albumDir, name)

		rec, err := sidecar.ReadAlbumMeta(albumDir)
		if err != nil {
			return nil, err
		}
		fe := rec.Files[name]

		fields, err := packedmeta.Unpack(fe.Meta)
		if err != nil {
			fields = packedmeta.Fields{
				IsImage: classify.IsImage(path),
				IsVideo: classify.IsVideo(path),
			}
		}
		fields.ShootEpoch = uint64(timestamp)
		fields.ShootSet = true
		packed := packedmeta.Pack(fields)

		if _, err := sidecar.WriteMeta(albumDir, name, packed); err != nil {
			return nil, err
		}
		_ = embedtime.Write(path, uint64(timestamp))

		updated, err := sidecar.ReadAlbumMeta(albumDir)
		if err != nil {
			return nil, err
		}
		ufe := updated.Files[name]
		out = append(out, MediaEntry{Meta: ufe.Meta, Name: name, Favorite: ufe.Favorite})
	}
	return out, nil
}

// GetAlbumSize implements get_album_size: the byte sum over one album's
// media files, non-recursive.
func (s *Service) GetAlbumSize(dir string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range ents {
		if e.IsDir() || !(classify.IsImage(e.Name()) || classify.IsVideo(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// RebuildThumbnails implements rebuild_thumbnails: for every direct child
// album of root, wipes and regenerates its thumbnail directory from
// scratch, returning the count of thumbnails written.
func (s *Service) RebuildThumbnails(ctx context.Context, root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}
	children, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, c := range children {
		albumDir := filepath.Join(root, c.Name())
		if !classify.IsAlbumDir(albumDir) {
			continue
		}

		thumbDir := filepath.Join(albumDir, sidecar.ThumbDirName)
		_ = os.RemoveAll(thumbDir)
		if err := os.MkdirAll(thumbDir, 0o755); err != nil {
			continue
		}

		media, err := mediaFilesForAlbum(albumDir)
		if err != nil {
			continue
		}
		for _, path := range media {
			if _, err := s.Thumbs.EnsureThumb(ctx, albumDir, path); err == nil {
				written++
			}
		}
	}
	return written, nil
}

// RebuildMetadata implements rebuild_metadata: for every direct child
// album of root, converts any HEIC inputs in place and re-extracts
// metadata for every media file, returning the count of files processed.
func (s *Service) RebuildMetadata(ctx context.Context, root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}
	children, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, c := range children {
		albumDir := filepath.Join(root, c.Name())
		if !classify.IsAlbumDir(albumDir) {
			continue
		}

		ents, err := os.ReadDir(albumDir)
		if err != nil {
			continue
		}
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(albumDir, e.Name())
			if classify.IsHEIC(e.Name()) {
				_, _ = s.Thumbs.ConvertHEIC(ctx, path)
				continue
			}
			if !classify.IsImage(e.Name()) && !classify.IsVideo(e.Name()) {
				continue
			}
			packed, err := s.Extractor.Extract(ctx, path)
			if err != nil {
				continue
			}
			if _, err := sidecar.WriteMeta(albumDir, e.Name(), packed); err != nil {
				continue
			}
			written++
		}
	}
	return written, nil
}

// ClearRoom237Artifacts implements clear_room237_artifacts: recursively
// removes every room237 sidecar directory, including the legacy
// ".room237-meta" directory and ".room237-meta.json" file, under root.
// Returns the count of artifact entries removed.
func (s *Service) ClearRoom237Artifacts(root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}

	entries, err := walkAlbumEntries(root)
	if err != nil {
		return 0, err
	}
	dirs := make([]string, 0, len(entries)+1)
	dirs = append(dirs, root)
	for _, e := range entries {
		dirs = append(dirs, e.path)
	}

	var removed int64
	for _, dir := range dirs {
		for _, name := range sidecar.ArtifactNames() {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := os.RemoveAll(p); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// RevealInFileManager implements reveal_in_file_manager: an
// OS-dispatched external command, out of scope for algorithmic design.
func RevealInFileManager(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s does not exist", path)
	}

	switch runtime.GOOS {
	case "darwin":
		return runStatus("open", "-R", path)
	case "windows":
		return runStatus("explorer", "/select,"+strings.ReplaceAll(path, "/", "\\"))
	default:
		dir := path
		if !info.IsDir() {
			dir = filepath.Dir(path)
		}
		return runStatus("xdg-open", dir)
	}
}

func runStatus(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to reveal %s: %w", name, err)
	}
	return nil
}
