package cmd

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/kiesman99/julia/pkg/fractal"
	"github.com/kiesman99/julia/pkg/tile"
)

func TestNodeIdentityFromLauncher(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		set       map[string]int
		wantRank  int
		wantNodes int
	}{
		{"defaults", nil, nil, 0, 1},
		{"open mpi", map[string]string{"OMPI_COMM_WORLD_RANK": "3", "OMPI_COMM_WORLD_SIZE": "8"}, nil, 3, 8},
		{"mpich", map[string]string{"PMI_RANK": "1", "PMI_SIZE": "2"}, nil, 1, 2},
		{"explicit wins", map[string]string{"PMI_RANK": "1", "PMI_SIZE": "2"}, map[string]int{"rank": 0, "nodes": 4}, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{"OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE", "PMI_RANK", "PMI_SIZE"} {
				t.Setenv(name, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			viper.Reset()
			defer viper.Reset()
			viper.BindPFlag("rank", rootCmd.Flags().Lookup("rank"))
			viper.BindPFlag("nodes", rootCmd.Flags().Lookup("nodes"))
			for k, v := range tt.set {
				viper.Set(k, v)
			}

			rank, nodes, err := nodeIdentity()
			if err != nil {
				t.Fatalf("nodeIdentity: %v", err)
			}
			if rank != tt.wantRank || nodes != tt.wantNodes {
				t.Errorf("got rank %d of %d, want %d of %d", rank, nodes, tt.wantRank, tt.wantNodes)
			}
		})
	}
}

func TestLoadRenderSettings(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("width", 64)
	viper.Set("height", 32)
	viper.Set("block-width", 16)
	viper.Set("block-height", 16)
	viper.Set("color", "grey")
	viper.Set("algorithm", "omp")
	viper.Set("iterations", 500)

	s, err := loadRenderSettings()
	if err != nil {
		t.Fatalf("loadRenderSettings: %v", err)
	}
	if s.Geometry != (tile.Geometry{Width: 64, Height: 32, BlockWidth: 16, BlockHeight: 16}) {
		t.Errorf("geometry = %+v", s.Geometry)
	}
	if s.Params.Mode != fractal.Greyscale || s.Algorithm != fractal.Parallel || s.Params.MaxIterations != 500 {
		t.Errorf("settings = %+v", s)
	}

	viper.Set("algorithm", "mpi")
	if _, err := loadRenderSettings(); err == nil {
		t.Error("expected an error for the mpi algorithm")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]tile.Format{
		"julia.png":     tile.FormatPNG,
		"out/julia.bmp": tile.FormatBMP,
		"julia.rgb.zst": tile.FormatRaw,
		"julia.raw":     tile.FormatRaw,
	}
	for path, want := range tests {
		if got, err := formatFromPath(path); err != nil || got != want {
			t.Errorf("formatFromPath(%q) = %v, %v", path, got, err)
		}
	}
	if _, err := formatFromPath("julia.gif"); err == nil {
		t.Error("expected an error for .gif")
	}
}
