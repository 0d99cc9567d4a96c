package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/julia/internal/logging"
	"github.com/kiesman99/julia/internal/observability"
	"github.com/kiesman99/julia/internal/render"
	"github.com/kiesman99/julia/pkg/fractal"
	"github.com/kiesman99/julia/pkg/tile"
)

const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "julia",
	Short: "Render a Julia set as a pyramid of zoom/row/column tiles",
	Long: `julia renders the filled Julia set of z -> z^2 + c as square blocks and
writes each block as a tile named <zoom>-<row>-<column>.<ext>.

The image is split into equal blocks which are shared out statically between
nodes. Each node renders only its own blocks, so the same command can be
started once per node (for example under mpirun) with a different rank.

Examples:
  # Render the default 1024x1024 image on a single node
  julia

  # Greyscale, 4096x4096 in 256x256 tiles, rows rendered in parallel
  julia --width 4096 --height 4096 --block-width 256 --block-height 256 --color grey -a parallel

  # Node 2 of 8, e.g. from a job script
  julia --rank 2 --nodes 8 -o /scratch/julia

  # All 8 ranks in this process
  julia --nodes 8 --all-ranks

  # Under mpirun the rank and node count are read from the launcher
  mpirun -n 8 julia -o res/images

  # Serve tiles over HTTP
  julia serve --port 8080`,
	SilenceUsage: true,
	RunE:         runRender,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.julia.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log per-block progress")

	// Image and block geometry
	rootCmd.PersistentFlags().Int("width", 1024, "image width in pixels")
	rootCmd.PersistentFlags().Int("height", 1024, "image height in pixels")
	rootCmd.PersistentFlags().Int("block-width", 16, "block (tile) width in pixels")
	rootCmd.PersistentFlags().Int("block-height", 16, "block (tile) height in pixels")

	// Fractal parameters
	rootCmd.PersistentFlags().Float64("min-r", -2.5, "minimum real coordinate")
	rootCmd.PersistentFlags().Float64("max-r", 2.5, "maximum real coordinate")
	rootCmd.PersistentFlags().Float64("min-i", -2, "minimum imaginary coordinate")
	rootCmd.PersistentFlags().Float64("max-i", 2, "maximum imaginary coordinate")
	rootCmd.PersistentFlags().Float64("c-real", -0.8, "real part of the constant c")
	rootCmd.PersistentFlags().Float64("c-imag", 0.156, "imaginary part of the constant c")
	rootCmd.PersistentFlags().IntP("iterations", "i", 1000, "maximum iterations per pixel")
	rootCmd.PersistentFlags().String("color", "rgb", "colour mode (rgb|grey)")
	rootCmd.PersistentFlags().StringP("algorithm", "a", "sequential", "renderer (sequential|parallel)")

	// Output options
	rootCmd.Flags().StringP("output", "o", "res/images", "output directory for tiles")
	rootCmd.Flags().StringP("format", "f", "png", "tile format (png|bmp|raw)")

	// Node identity
	rootCmd.Flags().Int("rank", 0, "rank of this node (default from OMPI_COMM_WORLD_RANK or PMI_RANK)")
	rootCmd.Flags().Int("nodes", 1, "number of nodes (default from OMPI_COMM_WORLD_SIZE or PMI_SIZE)")
	rootCmd.Flags().Bool("all-ranks", false, "render every rank in this process")

	// Bind flags to viper
	for _, name := range []string{
		"verbose", "width", "height", "block-width", "block-height",
		"min-r", "max-r", "min-i", "max-i", "c-real", "c-imag",
		"iterations", "color", "algorithm",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	for _, name := range []string{"output", "format", "rank", "nodes", "all-ranks"} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".julia" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".julia")
	}

	viper.SetEnvPrefix("julia")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the command logger and, in verbose mode, routes render
// and cache events to it.
func newLogger() *log.Logger {
	level := log.InfoLevel
	if viper.GetBool("verbose") {
		level = log.DebugLevel
	}
	logger := logging.New(os.Stderr, level)
	if level == log.DebugLevel {
		hooks := observability.LogHooks{Logger: logger}
		observability.SetRenderHooks(hooks)
		observability.SetCacheHooks(hooks)
	}
	return logger
}

// renderSettings are the options shared by rendering and serving
type renderSettings struct {
	Geometry  tile.Geometry
	Window    tile.PlaneWindow
	Params    fractal.Params
	Algorithm fractal.Algorithm
}

func loadRenderSettings() (renderSettings, error) {
	mode, err := fractal.ParseColorMode(viper.GetString("color"))
	if err != nil {
		return renderSettings{}, err
	}
	algorithm, err := fractal.ParseAlgorithm(viper.GetString("algorithm"))
	if err != nil {
		return renderSettings{}, err
	}
	return renderSettings{
		Geometry: tile.Geometry{
			Width:       viper.GetInt("width"),
			Height:      viper.GetInt("height"),
			BlockWidth:  viper.GetInt("block-width"),
			BlockHeight: viper.GetInt("block-height"),
		},
		Window: tile.PlaneWindow{
			MinR: viper.GetFloat64("min-r"),
			MaxR: viper.GetFloat64("max-r"),
			MinI: viper.GetFloat64("min-i"),
			MaxI: viper.GetFloat64("max-i"),
		},
		Params: fractal.Params{
			CReal:         viper.GetFloat64("c-real"),
			CImag:         viper.GetFloat64("c-imag"),
			MaxIterations: viper.GetInt("iterations"),
			Mode:          mode,
		},
		Algorithm: algorithm,
	}, nil
}

// nodeIdentity resolves rank and node count. Values from flags, config or
// JULIA_* variables win over the MPI launcher's variables.
func nodeIdentity() (rank, nodes int, err error) {
	rank, nodes = viper.GetInt("rank"), viper.GetInt("nodes")
	if !viper.IsSet("rank") {
		if v, ok, err := launcherInt("OMPI_COMM_WORLD_RANK", "PMI_RANK"); err != nil {
			return 0, 0, err
		} else if ok {
			rank = v
		}
	}
	if !viper.IsSet("nodes") {
		if v, ok, err := launcherInt("OMPI_COMM_WORLD_SIZE", "PMI_SIZE"); err != nil {
			return 0, 0, err
		} else if ok {
			nodes = v
		}
	}
	return rank, nodes, nil
}

func launcherInt(names ...string) (int, bool, error) {
	for _, name := range names {
		s := os.Getenv(name)
		if strings.TrimSpace(s) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s=%q: %w", name, s, err)
		}
		return v, true, nil
	}
	return 0, false, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	settings, err := loadRenderSettings()
	if err != nil {
		return err
	}
	format, err := tile.ParseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}
	rank, nodes, err := nodeIdentity()
	if err != nil {
		return err
	}

	job := render.Job{
		Geometry:  settings.Geometry,
		Window:    settings.Window,
		Params:    settings.Params,
		Algorithm: settings.Algorithm,
		Format:    format,
		OutputDir: viper.GetString("output"),
		Rank:      rank,
		Nodes:     nodes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	runner := render.NewRunner()
	if viper.GetBool("all-ranks") {
		progress := logging.NewProgress(logger)
		manifests, err := runner.RunAll(ctx, job)
		if err != nil {
			return err
		}
		tiles := 0
		for _, m := range manifests {
			tiles += len(m.Tiles)
		}
		progress.Done(fmt.Sprintf("All %d ranks done, %d tiles", len(manifests), tiles), "dir", job.OutputDir)
		return nil
	}

	_, err = runner.Run(ctx, job)
	return err
}
