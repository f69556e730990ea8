package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/tracthist/internal/vintage"
)

var vintagesManifest string

var vintagesCmd = &cobra.Command{
	Use:   "vintages",
	Short: "List the configured census vintages",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath := vintagesManifest
		if manifestPath == "" {
			manifestPath = cfg.Pipeline.Manifest
		}
		m, err := vintage.LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		vintages := append([]vintage.Vintage(nil), m.Vintages...)
		sort.Slice(vintages, func(i, j int) bool { return vintages[i].Year < vintages[j].Year })

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "YEAR\tSHAPEFILE\tATTRIBUTES\tTABLE\tSHORTFALL")
		for _, v := range vintages {
			table := v.AttributeTable
			if table == "" {
				table = "(dbf)"
			}
			shortfall := "-"
			if len(v.ExpectedShortfall) > 0 {
				shortfall = fmt.Sprintf("%v", v.ExpectedShortfall)
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
				v.Year, v.Shapefile, len(v.Attributes), table, shortfall)
		}
		return w.Flush()
	},
}

func init() {
	vintagesCmd.Flags().StringVar(&vintagesManifest, "manifest", "", "vintage manifest path (default from config)")
	rootCmd.AddCommand(vintagesCmd)
}
