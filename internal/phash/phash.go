// Package phash computes a block-hash perceptual fingerprint over a
// thumbnail (preferred) or the original image, and provides Hamming
// distance comparison over the packed bit representation.
package phash

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/bits"
	"os"

	"github.com/nfnt/resize"
	"golang.org/x/image/webp"

	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/sidecar"
	"github.com/beveiled/room237/internal/thumbnail"
)

// Bits is the little-endian-packed bit vector representation used both
// for sidecar persistence and the near-duplicate candidate index.
type Bits []uint64

// Hasher computes and caches perceptual hashes.
type Hasher struct {
	Cfg   *config.Config
	Thumb *thumbnail.Generator
}

func New(cfg *config.Config, thumb *thumbnail.Generator) *Hasher {
	return &Hasher{Cfg: cfg, Thumb: thumb}
}

// ComputeForPath implements compute_hash_for_path: cache hit, else hash
// the thumbnail (or original) with fallback, persisting on success.
func (h *Hasher) ComputeForPath(ctx context.Context, albumDir, path string) (Bits, error) {
	name := baseName(path)
	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		return nil, err
	}
	entry := rec.Files[name]

	if entry.Hash != "" && entry.HashVersion == h.Cfg.Hash.Version && entry.HashBits == h.Cfg.Hash.Bits {
		return DecodeBits(entry.Hash)
	}

	primary, fallback := path, path
	if h.Cfg.Hash.UseThumbnailsFirst {
		if tp, err := h.Thumb.EnsureThumb(ctx, albumDir, path); err == nil {
			primary, fallback = tp, path
		}
	}

	bitsVec, hashErr := h.hashFile(primary)
	if hashErr != nil {
		bitsVec, hashErr = h.hashFile(fallback)
	}
	if hashErr != nil {
		_, _ = sidecar.MarkHashFailed(albumDir, name)
		return nil, hashErr
	}

	encoded := encodeBits(bitsVec)
	if _, err := sidecar.WriteAlbumFileHash(albumDir, name, encoded, h.Cfg.Hash.Version, h.Cfg.Hash.Bits); err != nil {
		return nil, err
	}
	return bitsVec, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// hashFile decodes an image (JPEG, PNG, or WebP), resizes it to the
// configured grid, and packs one bit per cell: 1 when the cell's gray
// value exceeds the grid-wide average, matching the block-hash algorithm.
func (h *Hasher) hashFile(path string) (Bits, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := decodeAny(f)
	if err != nil {
		return nil, err
	}

	cols, rows := uint(h.Cfg.Hash.Cols), uint(h.Cfg.Hash.Rows)
	var small image.Image
	switch h.Cfg.Hash.ResizeFilter {
	case "bilinear":
		small = resize.Resize(cols, rows, img, resize.Bilinear)
	default:
		small = resize.Resize(cols, rows, img, resize.NearestNeighbor)
	}

	grays := make([]float64, 0, cols*rows)
	var sum float64
	for y := 0; y < int(rows); y++ {
		for x := 0; x < int(cols); x++ {
			g := color.GrayModel.Convert(small.At(x, y)).(color.Gray).Y
			v := float64(g)
			grays = append(grays, v)
			sum += v
		}
	}
	avg := sum / float64(len(grays))

	total := int(cols * rows)
	words := (total + 63) / 64
	out := make(Bits, words)
	for i, v := range grays {
		if v > avg {
			out[i/64] |= uint64(1) << uint(i%64)
		}
	}
	return out, nil
}

func decodeAny(f *os.File) (image.Image, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("phash: unrecognized image format")
}

// HammingDistance xors the two bit vectors word by word and popcounts,
// short-circuiting once the running distance exceeds threshold.
func HammingDistance(a, b Bits, threshold int) int {
	dist := 0
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dist += bits.OnesCount64(a[i] ^ b[i])
		if dist > threshold {
			return dist
		}
	}
	return dist
}

func encodeBits(b Bits) string {
	buf := make([]byte, len(b)*8)
	for i, w := range b {
		for j := 0; j < 8; j++ {
			buf[i*8+j] = byte(w >> (8 * j))
		}
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBits decodes a base64 hash string (as persisted in the sidecar)
// back into its bit-vector representation, for callers outside this
// package that need to compare cached hashes directly (e.g. dedupe).
func DecodeBits(s string) (Bits, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	words := (len(buf) + 7) / 8
	out := make(Bits, words)
	for i := 0; i < len(buf); i++ {
		out[i/8] |= uint64(buf[i]) << (8 * (i % 8))
	}
	return out, nil
}
