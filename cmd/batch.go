package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/gridio"
	"github.com/sells-group/suitability-cli/internal/store"
	"github.com/sells-group/suitability-cli/internal/suitability"
)

var (
	batchPaths       inputPaths
	batchProfiles    string
	batchConcurrency int
	batchOut         string
	batchFormat      string
	batchMaskDir     string
	batchNoStore     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score zones for every species in a profiles file",
	Long:  "Loads the base grids and zones once, then evaluates each species profile concurrently against them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchProfiles != "" {
			cfg.ProfilesPath = batchProfiles
		}
		if batchConcurrency > 0 {
			cfg.Pipeline.Concurrency = batchConcurrency
		}
		if batchFormat != "" {
			cfg.Export.Format = batchFormat
		}
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		profiles, err := suitability.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return err
		}
		in, err := loadInputs(batchPaths)
		if err != nil {
			return err
		}

		var st store.Store
		if !batchNoStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		outs, runs, err := executeBatch(ctx, st, newRunner(processMetrics()), in, profiles, cfg.Pipeline.Concurrency)
		if err != nil {
			return eris.Wrap(err, "batch")
		}
		for _, r := range runs {
			zap.L().Info("run recorded", zap.String("run_id", r.ID), zap.String("species", r.SpeciesLabel))
		}

		if batchMaskDir != "" {
			if err := writeMasks(batchMaskDir, outs); err != nil {
				return err
			}
		}
		return writeResults(batchOut, batchFormat, outs)
	},
}

// writeMasks writes one <species>.asc per output into dir.
func writeMasks(dir string, outs []*suitability.Output) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create mask dir %s", dir)
	}
	for _, o := range outs {
		path := filepath.Join(dir, maskFileName(o.SpeciesLabel))
		if err := gridio.WriteFile(path, o.Mask); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "Wrote %d masks to %s\n", len(outs), dir)
	return nil
}

// maskFileName makes a species label safe to use as a file name.
func maskFileName(species string) string {
	b := []byte(species)
	for i, ch := range b {
		ok := ch == '-' || ch == '_' || ch == '.' ||
			(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
		if !ok {
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "mask.asc"
	}
	return string(b) + ".asc"
}

func init() {
	addInputFlags(batchCmd, &batchPaths)
	batchCmd.Flags().StringVar(&batchProfiles, "profiles", "", "species profiles YAML (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "species evaluated at once (default from config)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "combined result table path (default stdout)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "", "result format: csv, xlsx, or json")
	batchCmd.Flags().StringVar(&batchMaskDir, "mask-dir", "", "write each species mask into this directory")
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "do not record the runs")
	rootCmd.AddCommand(batchCmd)
}
