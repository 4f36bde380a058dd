package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/suitability-cli/internal/export"
	"github.com/sells-group/suitability-cli/internal/gridio"
	"github.com/sells-group/suitability-cli/internal/store"
	"github.com/sells-group/suitability-cli/internal/suitability"
	"github.com/sells-group/suitability-cli/internal/zoneload"
)

var (
	runPaths     inputPaths
	runOut       string
	runMaskOut   string
	runFormat    string
	runNoStore   bool
	runSaveZones bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score zones for a single species",
	Long:  "Evaluates one set of temperature and depth thresholds. Flags override the criteria section of the config file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := criteriaFromConfig(cfg.Criteria)
		applyCriteriaFlags(cmd, &c)
		cfg.Criteria.SpeciesLabel = c.SpeciesLabel
		cfg.Criteria.MinTemp, cfg.Criteria.MaxTemp = c.MinTemp, c.MaxTemp
		cfg.Criteria.MinDepth, cfg.Criteria.MaxDepth = c.MinDepth, c.MaxDepth
		if runFormat != "" {
			cfg.Export.Format = runFormat
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		in, err := loadInputs(runPaths)
		if err != nil {
			return err
		}

		var st store.Store
		if !runNoStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if runSaveZones {
				if err := saveZoneCatalog(ctx, st, in); err != nil {
					return err
				}
			}
		}

		out, run, err := executeRun(ctx, st, newRunner(processMetrics()), in, c)
		if err != nil {
			return eris.Wrap(err, "run")
		}
		if run != nil {
			zap.L().Info("run recorded", zap.String("run_id", run.ID))
		}

		if runMaskOut != "" {
			if err := gridio.WriteFile(runMaskOut, out.Mask); err != nil {
				return err
			}
		}
		return writeResults(runOut, runFormat, []*suitability.Output{out})
	},
}

// applyCriteriaFlags overrides c with any criteria flag set on cmd.
func applyCriteriaFlags(cmd *cobra.Command, c *suitability.Criteria) {
	flags := cmd.Flags()
	if flags.Changed("species") {
		c.SpeciesLabel, _ = flags.GetString("species")
	}
	for name, dst := range map[string]*float64{
		"min-temp":  &c.MinTemp,
		"max-temp":  &c.MaxTemp,
		"min-depth": &c.MinDepth,
		"max-depth": &c.MaxDepth,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}
}

// writeResults writes every output's result table to path, or to stdout
// when path is empty. Without an explicit format the path extension picks
// one.
func writeResults(path, formatFlag string, outs []*suitability.Output) error {
	var rows []export.Row
	for _, o := range outs {
		rows = append(rows, export.FromReport(o.SpeciesLabel, o.Report)...)
	}

	def, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}
	if path == "" {
		return export.Write(os.Stdout, def, rows)
	}
	format := def
	if formatFlag == "" {
		format = export.FormatFromPath(path, def)
	}
	if err := export.WriteFile(path, format, rows); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d rows to %s\n", len(rows), path)
	return nil
}

func saveZoneCatalog(ctx context.Context, st store.Store, in *inputs) error {
	rows, err := zoneload.Catalog(in.Zones, zoneload.SRID(in.SST.CRS))
	if err != nil {
		return err
	}
	return eris.Wrap(st.SaveZones(ctx, rows), "save zone catalog")
}

func addInputFlags(cmd *cobra.Command, p *inputPaths) {
	cmd.Flags().StringVar(&p.SST, "sst", "", "sea surface temperature grid (.asc)")
	cmd.Flags().StringVar(&p.Depth, "depth", "", "depth grid (.asc)")
	cmd.Flags().StringVar(&p.Zones, "zones", "", "zone polygons (.shp)")
}

func init() {
	addInputFlags(runCmd, &runPaths)
	runCmd.Flags().String("species", "", "species label carried into outputs")
	runCmd.Flags().Float64("min-temp", 0, "minimum temperature, °C inclusive")
	runCmd.Flags().Float64("max-temp", 0, "maximum temperature, °C inclusive")
	runCmd.Flags().Float64("min-depth", 0, "minimum depth, metres inclusive")
	runCmd.Flags().Float64("max-depth", 0, "maximum depth, metres inclusive")
	runCmd.Flags().StringVar(&runOut, "out", "", "result table path (default stdout)")
	runCmd.Flags().StringVar(&runMaskOut, "mask-out", "", "write the suitability mask as an ASCII grid")
	runCmd.Flags().StringVar(&runFormat, "format", "", "result format: csv, xlsx, or json (default from config or --out extension)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "do not record the run")
	runCmd.Flags().BoolVar(&runSaveZones, "save-zones", false, "upsert the zones into the zone catalog")
	rootCmd.AddCommand(runCmd)
}
