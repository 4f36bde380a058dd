package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/suitability-cli/internal/suitability"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect species profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List the species in a profiles file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := suitability.LoadProfiles(profilesPath(args))
		if err != nil {
			return err
		}
		formatProfiles(os.Stdout, profiles)
		return nil
	},
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a profiles file without running anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := profilesPath(args)
		profiles, err := suitability.LoadProfiles(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d species OK\n", path, len(profiles))
		return nil
	},
}

func profilesPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.ProfilesPath
}

// formatProfiles writes a table of species thresholds to out.
func formatProfiles(out io.Writer, profiles []suitability.Criteria) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SPECIES\tTEMP_C\tDEPTH_M")
	_, _ = fmt.Fprintln(w, "-------\t------\t-------")
	for _, p := range profiles {
		_, _ = fmt.Fprintf(w, "%s\t%g..%g\t%g..%g\n", p.SpeciesLabel, p.MinTemp, p.MaxTemp, p.MinDepth, p.MaxDepth)
	}
	_ = w.Flush()
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesValidateCmd)
	rootCmd.AddCommand(profilesCmd)
}
