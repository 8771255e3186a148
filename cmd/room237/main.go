package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/beveiled/room237/internal/catalog"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/room237"
	"github.com/beveiled/room237/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "room237",
	Short: "Local media library artifact pipeline and catalog service",
}

func main() {
	v := version.Load()
	rootCmd.Version = v.Version

	rootCmd.AddCommand(
		listAlbumsCmd(),
		listAlbumMediaCmd(),
		listFavoritesCmd(),
		registerMediaCmd(),
		moveMediaCmd(),
		renameAlbumCmd(),
		revealCmd(),
		setFavoriteCmd(),
		setTimestampCmd(),
		findDuplicatesCmd(),
		markNonDuplicatesCmd(),
		getAlbumSizeCmd(),
		rebuildThumbnailsCmd(),
		rebuildMetadataCmd(),
		resetDuplicatesCmd(),
		clearArtifactsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEngine() *room237.Engine {
	return room237.New(config.Load())
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(out))
}

func listAlbumsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-albums <root>",
		Short: "List every album under root, enqueuing each for preload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			albums, err := e.Catalog.ListAlbums(args[0])
			if err != nil {
				return err
			}
			printJSON(albums)
			return nil
		},
	}
}

func listAlbumMediaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-media <album-dir>",
		Short: "List an album's media entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			entries, err := e.Catalog.ListAlbumMedia(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(entries)
			return nil
		},
	}
}

func listFavoritesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-favorites <root>",
		Short: "List every favorited file across all albums under root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			favs, err := e.Catalog.ListFavorites(args[0])
			if err != nil {
				return err
			}
			printJSON(favs)
			return nil
		},
	}
}

func registerMediaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-media <album-dir> <name>",
		Short: "Run thumbnail/metadata/hash extraction for one externally-added file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			entry, err := e.Catalog.RegisterMedia(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printJSON(entry)
			return nil
		},
	}
}

func moveMediaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move-media <source-album> <target-album> <name>",
		Short: "Move one file between albums, assigning a collision-free name",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			name, err := e.Catalog.MoveMedia(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printJSON(map[string]string{"name": name})
			return nil
		},
	}
}

func renameAlbumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-album <root> <album-id> <new-name>",
		Short: "Rename an album directory in place",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			result, err := e.Catalog.RenameAlbum(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func revealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal <path>",
		Short: "Reveal a file or directory in the OS file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return catalog.RevealInFileManager(args[0])
		},
	}
}

func setFavoriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-favorite <album-dir> <name> <true|false>",
		Short: "Set or clear a media file's favorite flag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			favorite, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("favorite must be true or false: %w", err)
			}
			e := newEngine()
			entry, err := e.Catalog.SetMediaFavorite(args[0], args[1], favorite)
			if err != nil {
				return err
			}
			printJSON(entry)
			return nil
		},
	}
}

func setTimestampCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-timestamp <album-dir> <epoch-seconds> <name...>",
		Short: "Set the shoot timestamp for one or more files in an album",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("epoch-seconds must be an integer: %w", err)
			}
			e := newEngine()
			entries, err := e.Catalog.SetMediaTimestamp(args[0], args[2:], ts)
			if err != nil {
				return err
			}
			printJSON(entries)
			return nil
		},
	}
}

func findDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-duplicates <album-dir>",
		Short: "Group an album's images into near-duplicate clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			groups, err := e.Dedupe.FindDuplicates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(groups)
			return nil
		},
	}
}

func markNonDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-non-duplicates <album-dir> <name...>",
		Short: "Add the cross-product of the named files to the ignore set",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			return e.Dedupe.MarkNonDuplicates(args[0], args[1:])
		},
	}
}

func getAlbumSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-album-size <album-dir>",
		Short: "Sum the byte size of one album's media files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			size, err := e.Catalog.GetAlbumSize(args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]int64{"bytes": size})
			return nil
		},
	}
}

func rebuildThumbnailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-thumbnails <root>",
		Short: "Wipe and regenerate thumbnails for every direct child album of root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			n, err := e.Catalog.RebuildThumbnails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]int64{"written": n})
			return nil
		},
	}
}

func rebuildMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-metadata <root>",
		Short: "Convert HEIC inputs and re-extract metadata for every direct child album of root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			n, err := e.Catalog.RebuildMetadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]int64{"written": n})
			return nil
		},
	}
}

func resetDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-duplicates <root>",
		Short: "Clear the duplicates_ignore set for every album under root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			n, err := e.Dedupe.ResetDuplicates(args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]int64{"cleared": n})
			return nil
		},
	}
}

func clearArtifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-artifacts <root>",
		Short: "Remove every room237 sidecar directory, current and legacy, under root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEngine()
			n, err := e.Catalog.ClearRoom237Artifacts(args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]int64{"removed": n})
			return nil
		},
	}
}
