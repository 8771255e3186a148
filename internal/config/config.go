// Package config loads room237's tunables from the environment.
package config

import (
	"os"
	"time"

	"github.com/spf13/cast"
)

type ThumbnailConfig struct {
	MaxDim                  int
	ImageWebPQuality        int
	ImageWebPCompressionLvl int
	VideoSeekSeconds        float64
	LockPollMs              int
	Version                 string
}

type PreloadConfig struct {
	ThumbWorkers              int
	MetaWorkers               int
	HashWorkers               int
	ProgressEmitMs            int
	ThumbHashQueueDelayMs     int
	ThumbHashRetryOnChange    bool
	MaxConcurrentSubprocesses int
	LockReapInterval          time.Duration
	LockStaleAfter            time.Duration
}

type HashConfig struct {
	Cols               int
	Rows               int
	Bits               int
	Version            string
	ResizeFilter       string
	Alg                string
	EffectiveThreshold int
	UseThumbnailsFirst bool
}

type DuplicatesConfig struct {
	MaxFilesPerAlbum int
}

type AlbumConfig struct {
	MoveRenameThumbsAndMeta bool
	RenameCleanupDelaySecs  int
}

type MetadataConfig struct {
	ParseCreationTime bool
}

type ProcConfig struct {
	MediaTool        string
	ProbeTimeout     time.Duration
	ThumbnailTimeout time.Duration
}

type Config struct {
	Thumbnails ThumbnailConfig
	Preload    PreloadConfig
	Hash       HashConfig
	Duplicates DuplicatesConfig
	Album      AlbumConfig
	Metadata   MetadataConfig
	Proc       ProcConfig
}

// Load reads configuration from the environment, falling back to the
// defaults baked into the original implementation.
func Load() *Config {
	return &Config{
		Thumbnails: ThumbnailConfig{
			MaxDim:                  envInt("ROOM237_THUMB_MAX_DIM", 480),
			ImageWebPQuality:        envInt("ROOM237_THUMB_IMAGE_QUALITY", 80),
			ImageWebPCompressionLvl: envInt("ROOM237_THUMB_COMPRESSION_LEVEL", 4),
			VideoSeekSeconds:        envFloat("ROOM237_THUMB_VIDEO_SEEK_SECS", 1.0),
			LockPollMs:              envInt("ROOM237_THUMB_LOCK_POLL_MS", 50),
			Version:                 envStr("ROOM237_THUMB_VERSION", "v1"),
		},
		Preload: PreloadConfig{
			ThumbWorkers:              envInt("ROOM237_PRELOAD_THUMB_WORKERS", 2),
			MetaWorkers:               envInt("ROOM237_PRELOAD_META_WORKERS", 2),
			HashWorkers:               envInt("ROOM237_PRELOAD_HASH_WORKERS", 1),
			ProgressEmitMs:            envInt("ROOM237_PRELOAD_PROGRESS_EMIT_MS", 250),
			ThumbHashQueueDelayMs:     envInt("ROOM237_PRELOAD_THUMB_HASH_DELAY_MS", 0),
			ThumbHashRetryOnChange:    envBool("ROOM237_PRELOAD_THUMB_HASH_RETRY", true),
			MaxConcurrentSubprocesses: envInt("ROOM237_PRELOAD_MAX_SUBPROCESSES", 4),
			LockReapInterval:          envDuration("ROOM237_PRELOAD_LOCK_REAP_INTERVAL", 5*time.Minute),
			LockStaleAfter:            envDuration("ROOM237_PRELOAD_LOCK_STALE_AFTER", 2*time.Minute),
		},
		Hash: HashConfig{
			Cols:               envInt("ROOM237_HASH_COLS", 8),
			Rows:               envInt("ROOM237_HASH_ROWS", 8),
			Bits:               envInt("ROOM237_HASH_BITS", 64),
			Version:            envStr("ROOM237_HASH_VERSION", "v1"),
			ResizeFilter:       envStr("ROOM237_HASH_RESIZE_FILTER", "nearest"),
			Alg:                envStr("ROOM237_HASH_ALG", "blockhash"),
			EffectiveThreshold: envInt("ROOM237_HASH_THRESHOLD", 5),
			UseThumbnailsFirst: envBool("ROOM237_HASH_USE_THUMBS_FIRST", true),
		},
		Duplicates: DuplicatesConfig{
			MaxFilesPerAlbum: envInt("ROOM237_DUP_MAX_FILES", 2000),
		},
		Album: AlbumConfig{
			MoveRenameThumbsAndMeta: envBool("ROOM237_ALBUM_MOVE_RENAME_ARTIFACTS", true),
			RenameCleanupDelaySecs:  envInt("ROOM237_ALBUM_RENAME_CLEANUP_DELAY_SECS", 5),
		},
		Metadata: MetadataConfig{
			ParseCreationTime: envBool("ROOM237_METADATA_PARSE_CREATION_TIME", true),
		},
		Proc: ProcConfig{
			MediaTool:        envStr("ROOM237_FFMPEG_PATH", "ffmpeg"),
			ProbeTimeout:     envDuration("ROOM237_PROBE_TIMEOUT", 10*time.Second),
			ThumbnailTimeout: envDuration("ROOM237_THUMBNAIL_TIMEOUT", 30*time.Second),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := cast.ToIntE(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			return d
		}
	}
	return fallback
}
