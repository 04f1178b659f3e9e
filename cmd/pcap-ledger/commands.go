package main

import (
	"encoding/json"
	"fmt"
	"os"

	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/pipeline"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the record table",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()
		return c.App().InitDatabase(cmd.Context())
	},
}

var parseDir string

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse the capture directory and save the records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		app := c.App()
		if err := app.InitDatabase(ctx); err != nil {
			return err
		}
		res, err := app.ParseDirectory(ctx, parseDir)
		if err != nil {
			return err
		}
		if len(res.Records) == 0 {
			return pipeline.ErrNothingParsed
		}
		saved, err := app.SaveRecords(ctx, res.Records)
		if err != nil {
			return err
		}
		fmt.Printf("parsed %d records from %d files (%d frames skipped, %d over the per-file limit), saved %d\n",
			len(res.Records), len(res.Files), len(res.Failures), res.Truncated, saved)
		return nil
	},
}

var (
	exportOutput string
	exportStats  bool
	exportFilter filter.RawSpec
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.App().Export(ctx, pipeline.ExportOptions{
			Output:            exportOutput,
			Filter:            exportFilter,
			IncludeStatistics: includeStatistics(cmd, exportStats, c.Config.Export.IncludeStatistics),
		})
		if err != nil {
			return err
		}
		printExport(res)
		return nil
	},
}

var (
	runDir    string
	runOutput string
	runStats  bool
	runFilter filter.RawSpec
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Initialize, parse, save and export in one go",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		rep, err := c.App().Run(ctx, runDir, pipeline.ExportOptions{
			Output:            runOutput,
			Filter:            runFilter,
			IncludeStatistics: includeStatistics(cmd, runStats, c.Config.Export.IncludeStatistics),
		})
		for _, s := range rep.Stages {
			status := "ok"
			if !s.OK {
				status = "FAILED: " + s.Err.Error()
			}
			fmt.Printf("%-7s %6d  %s\n", s.Name, s.Count, status)
		}
		if err != nil {
			return err
		}
		printExport(rep.Export)
		return nil
	},
}

var statsFilter filter.RawSpec

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print statistics over the stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Querier().Summarize(ctx, statsFilter)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	},
}

// includeStatistics prefers an explicit --statistics over the configuration.
func includeStatistics(cmd *cobra.Command, flag, configured bool) bool {
	if cmd.Flags().Changed("statistics") {
		return flag
	}
	return configured
}

func printExport(res pipeline.ExportResult) {
	fmt.Printf("exported %d records to %s (run %s)\n", res.Exported, res.RecordsPath, res.RunID)
	if res.StatisticsPath != "" {
		fmt.Printf("statistics written to %s\n", res.StatisticsPath)
	}
	for _, a := range res.Alerts {
		fmt.Printf("alert: %s (%s %s %v, observed %v)\n", a.Rule.Name, a.Rule.Metric, a.Rule.Operator, a.Rule.Threshold, a.Value)
	}
}

func init() {
	parseCmd.Flags().StringVarP(&parseDir, "dir", "d", "", "capture directory (default from configuration)")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "records document path (default from configuration)")
	exportCmd.Flags().BoolVar(&exportStats, "statistics", false, "write the statistics document (default from configuration)")
	filterFlags(exportCmd, &exportFilter)

	runCmd.Flags().StringVarP(&runDir, "dir", "d", "", "capture directory (default from configuration)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "records document path (default from configuration)")
	runCmd.Flags().BoolVar(&runStats, "statistics", false, "write the statistics document (default from configuration)")
	filterFlags(runCmd, &runFilter)

	filterFlags(statsCmd, &statsFilter)
}
