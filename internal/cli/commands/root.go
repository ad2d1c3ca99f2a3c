package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "biobroker",
		Short: "Metadata ingest and export broker",
		Long: color.CyanString(`Biobroker - metadata ingest and export broker

Biobroker interprets experiment workbooks against a versioned JSON-schema
catalog, materializes the resulting entity graph into the central registry,
and packages submitted experiments into downstream store bundles.

Commands:
  ingest   Import a workbook and submit its entities to the registry
  export   Crawl a submitted process and register its bundle`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewIngestCommand())
	rootCmd.AddCommand(NewExportCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the biobroker version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Print("Biobroker version: ")
			valueColor.Println(Version)
			titleColor.Print("Git commit:        ")
			valueColor.Println(GitCommit)
			titleColor.Print("Build date:        ")
			valueColor.Println(BuildDate)
			titleColor.Print("Go version:        ")
			valueColor.Println(goVer)
		},
	}
}
