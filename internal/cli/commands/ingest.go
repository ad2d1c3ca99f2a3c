package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/cli/config"
	"github.com/biobroker/biobroker/internal/cli/ui"
	"github.com/biobroker/biobroker/internal/graph"
	"github.com/biobroker/biobroker/internal/importer"
	"github.com/biobroker/biobroker/internal/registry"
	"github.com/biobroker/biobroker/internal/schema"
	"github.com/biobroker/biobroker/internal/submit"
)

var (
	ingestWorkbookDir string
	ingestSubmission  string
	ingestDryRun      bool
	ingestVerbose     bool
)

// NewIngestCommand creates the ingest command
func NewIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import a workbook and submit its entities to the registry",
		Long: `Import an experiment workbook, link its entities, and create them
in the central registry.

The ingest command will:
  1. Build the schema template from the workbook's Schemas sheet,
     or from the registry's latest schemas
  2. Import every sheet into metadata entities
  3. Link entities through synthesized processes
  4. Create a submission envelope and submit entities and links

Examples:
  biobroker ingest --workbook ./sheets
  biobroker ingest --workbook ./sheets --submission 3f1c...-uuid
  biobroker ingest --workbook ./sheets --dry-run`,
		RunE: runIngest,
	}

	cmd.Flags().StringVarP(&ingestWorkbookDir, "workbook", "w", "", "Directory of workbook sheets (TSV, one file per sheet)")
	cmd.Flags().StringVar(&ingestSubmission, "submission", "", "Existing submission envelope UUID to submit into")
	cmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Import and link without contacting the registry for submission")
	cmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "Enable debug logging")
	cmd.MarkFlagRequired("workbook")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	steps := ui.NewStepper(cmd.OutOrStdout(), false)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(ingestVerbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client := registry.NewClient(registry.Config{
		BaseURL: cfg.Registry.URL,
		Token:   cfg.Registry.Token,
		Logger:  log,
	})

	steps.Phase("Importing workbook from %s", ingestWorkbookDir)
	workbook, err := importer.LoadTSVDir(ingestWorkbookDir)
	if err != nil {
		steps.Failed(err)
		return err
	}

	template, err := buildTemplate(ctx, cfg, client, workbook, log)
	if err != nil {
		steps.Failed(err)
		return err
	}

	entities, err := importer.New(template, log).Import(workbook)
	if err != nil {
		steps.Failed(err)
		return err
	}
	steps.Detail("imported %d entities", entities.Count())

	steps.Phase("Linking entities")
	links, err := graph.NewLinker(entities, template, log).Run()
	if err != nil {
		steps.Failed(err)
		return err
	}
	steps.Detail("resolved %d links", len(links))

	if ingestDryRun {
		steps.Done("dry run complete; nothing submitted")
		return nil
	}

	steps.Phase("Submitting to registry")
	submissionURL, err := resolveSubmission(ctx, client)
	if err != nil {
		steps.Failed(err)
		return err
	}
	if err := submit.New(client, log).Submit(ctx, submissionURL, entities, links); err != nil {
		steps.Failed(err)
		return err
	}

	steps.Done("submission complete")
	fmt.Println(submissionURL)
	return nil
}

// buildTemplate assembles the schema template, preferring the workbook's
// declared schema URLs over registry discovery.
func buildTemplate(ctx context.Context, cfg *config.Config, client *registry.Client, workbook *importer.Workbook, log *zap.Logger) (*schema.Template, error) {
	return schema.Build(ctx, schema.BuilderConfig{
		URLs:          workbook.SchemaURLs(),
		Discover:      client.LatestSchemaURLs,
		Fetch:         client.Fetch,
		MigrationsURL: cfg.Schema.MigrationsURL,
		Logger:        log,
	})
}

// resolveSubmission returns the envelope URL to submit into, creating a
// fresh envelope when none was named.
func resolveSubmission(ctx context.Context, client *registry.Client) (string, error) {
	if ingestSubmission != "" {
		envelope, err := client.FindByUUID(ctx, "submissionEnvelopes", ingestSubmission)
		if err != nil {
			return "", fmt.Errorf("failed to fetch submission %s: %w", ingestSubmission, err)
		}
		return envelope.SelfURL(), nil
	}
	envelope, err := client.CreateSubmission(ctx)
	if err != nil {
		return "", err
	}
	return envelope.SelfURL(), nil
}

// newLogger builds the CLI logger
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}
