package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/julia/internal/logging"
	"github.com/kiesman99/julia/internal/stitcher"
	"github.com/kiesman99/julia/pkg/tile"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Assemble rendered tiles into one image",
	Long: `Assemble the tiles of a finished render into the full image.

The tile directory must contain the manifest-<rank>.toml file of every rank;
the manifests say which tile file holds which block.

Examples:
  # Stitch res/images into julia.png
  julia stitch --dir res/images -o julia.png

  # Stitch what is there, leaving missing blocks black
  julia stitch --dir res/images -o partial.png --partial`,
	RunE: runStitch,
}

func init() {
	rootCmd.AddCommand(stitchCmd)

	stitchCmd.Flags().String("dir", "res/images", "directory holding tiles and manifests")
	stitchCmd.Flags().StringP("output", "o", "julia.png", "output image (format from the extension)")
	stitchCmd.Flags().Bool("partial", false, "allow missing tiles")

	viper.BindPFlag("stitch.dir", stitchCmd.Flags().Lookup("dir"))
	viper.BindPFlag("stitch.output", stitchCmd.Flags().Lookup("output"))
	viper.BindPFlag("stitch.partial", stitchCmd.Flags().Lookup("partial"))
}

// formatFromPath picks the output format by file extension
func formatFromPath(path string) (tile.Format, error) {
	if strings.HasSuffix(path, ".zst") {
		return tile.FormatRaw, nil
	}
	return tile.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

func runStitch(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	output := viper.GetString("stitch.output")
	format, err := formatFromPath(output)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	_, err = stitcher.New(nil).Stitch(ctx, stitcher.Options{
		Dir:          viper.GetString("stitch.dir"),
		Output:       output,
		Format:       format,
		AllowPartial: viper.GetBool("stitch.partial"),
	})
	return err
}
