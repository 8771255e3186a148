// Package dedupe finds near-duplicate images within an album via a
// block-indexed union-find over cached perceptual hashes.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/beveiled/room237/internal/classify"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/phash"
	"github.com/beveiled/room237/internal/scheduler"
	"github.com/beveiled/room237/internal/sidecar"
)

// ErrTooManyFiles is returned when an album exceeds the configured cap.
var ErrTooManyFiles = errors.New("dedupe: too many files in album")

type Finder struct {
	Cfg   *config.Config
	Sched *scheduler.Scheduler
}

func New(cfg *config.Config, sched *scheduler.Scheduler) *Finder {
	return &Finder{Cfg: cfg, Sched: sched}
}

// entry is one album image with its cached hash split into 16-bit block
// fragments for the candidate index.
type entry struct {
	name   string
	bits   phash.Bits
	blocks []uint16
}

func blocksOf(b phash.Bits) []uint16 {
	out := make([]uint16, 0, len(b)*4)
	for _, w := range b {
		out = append(out,
			uint16(w),
			uint16(w>>16),
			uint16(w>>32),
			uint16(w>>48),
		)
	}
	return out
}

// FindDuplicates implements §4.9's algorithm end to end.
func (f *Finder) FindDuplicates(ctx context.Context, albumDir string) ([][]string, error) {
	files, err := imageFiles(albumDir)
	if err != nil {
		return nil, err
	}
	if len(files) > f.Cfg.Duplicates.MaxFilesPerAlbum {
		return nil, fmt.Errorf("%w: %d files", ErrTooManyFiles, len(files))
	}

	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		return nil, err
	}
	ignore := map[sidecar.PairKey]bool{}
	for _, p := range rec.Album.DuplicatesIgnore {
		ignore[canon(p[0], p[1])] = true
	}

	f.Sched.WaitForAlbumHashes(ctx, albumDir, files, scheduler.High)

	rec, err = sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		return nil, err
	}

	var entries []entry
	for _, path := range files {
		name := filepath.Base(path)
		fe := rec.Files[name]
		if fe.Hash == "" || fe.HashFailed {
			continue
		}
		bits, err := decodeCachedBits(fe.Hash)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: name, bits: bits, blocks: blocksOf(bits)})
	}

	groups := unionFindGroups(entries, f.Cfg.Hash.EffectiveThreshold, ignore)

	for _, g := range groups {
		sort.Strings(g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}

// unionFindGroups builds the flat block-key candidate index, then unions
// entries whose Hamming distance is within threshold and not ignored.
func unionFindGroups(entries []entry, threshold int, ignore map[sidecar.PairKey]bool) [][]string {
	n := len(entries)
	if n == 0 {
		return nil
	}

	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rank[ra] < rank[rb] {
			ra, rb = rb, ra
		}
		parent[rb] = ra
		if rank[ra] == rank[rb] {
			rank[ra]++
		}
	}

	// candidate index: (blockPosition<<16 | value) -> sorted entry indices
	type keyed struct {
		key uint32
		idx int
	}
	var flat []keyed
	for i, e := range entries {
		for pos, v := range e.blocks {
			flat = append(flat, keyed{key: uint32(pos)<<16 | uint32(v), idx: i})
		}
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].key < flat[j].key })

	// stamp table: a token-bump visited marker, avoiding an O(n) clear per
	// outer iteration.
	stamp := make([]int, n)
	token := 0

	for a := range entries {
		token++
		for blockIdx, v := range entries[a].blocks {
			key := uint32(blockIdx)<<16 | uint32(v)
			start := sort.Search(len(flat), func(i int) bool { return flat[i].key >= key })
			for i := start; i < len(flat) && flat[i].key == key; i++ {
				b := flat[i].idx
				if b <= a || stamp[b] == token {
					continue
				}
				stamp[b] = token
				if ignore[canon(entries[a].name, entries[b].name)] {
					continue
				}
				if phash.HammingDistance(entries[a].bits, entries[b].bits, threshold) <= threshold {
					union(a, b)
				}
			}
		}
	}

	groupsByRoot := map[int][]string{}
	for i, e := range entries {
		r := find(i)
		groupsByRoot[r] = append(groupsByRoot[r], e.name)
	}

	var out [][]string
	for _, g := range groupsByRoot {
		if len(g) >= 2 {
			out = append(out, g)
		}
	}
	return out
}

// MarkNonDuplicates adds the full cross-product of pairs among names to
// the album's ignore set.
func (f *Finder) MarkNonDuplicates(albumDir string, names []string) error {
	return sidecar.AddIgnorePairs(albumDir, names)
}

// ResetDuplicates implements reset_duplicates: clears duplicates_ignore
// for every album under root, returning the count of albums cleared.
func (f *Finder) ResetDuplicates(root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", root)
	}

	albums, err := walkAlbumDirs(root)
	if err != nil {
		return 0, err
	}

	var cleared int64
	for _, dir := range albums {
		if err := sidecar.ResetIgnorePairs(dir); err == nil {
			cleared++
		}
	}
	return cleared, nil
}

// walkAlbumDirs performs the same depth-first album walk as the catalog
// service, kept local since dedupe's only use for it is this one reset
// sweep.
func walkAlbumDirs(root string) ([]string, error) {
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

func canon(a, b string) sidecar.PairKey {
	if a > b {
		a, b = b, a
	}
	return sidecar.PairKey{a, b}
}

func imageFiles(albumDir string) ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(albumDir, "*"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if classify.IsImage(filepath.Base(e)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func decodeCachedBits(b64 string) (phash.Bits, error) {
	return phash.DecodeBits(b64)
}
