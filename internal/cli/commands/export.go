package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/cli/config"
	"github.com/biobroker/biobroker/internal/cli/ui"
	"github.com/biobroker/biobroker/internal/crawler"
	"github.com/biobroker/biobroker/internal/dss"
	"github.com/biobroker/biobroker/internal/export"
	"github.com/biobroker/biobroker/internal/registry"
	"github.com/biobroker/biobroker/internal/staging"
	"github.com/biobroker/biobroker/internal/upload"
)

var (
	exportSubmission   string
	exportProcess      string
	exportBundle       string
	exportCreatorUID   string
	exportUpdate       bool
	exportMetadataURLs []string
	exportVerbose      bool
)

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Crawl a submitted process and register its bundle",
		Long: `Crawl the experiment graph seeded by a process and register the
resulting bundle in the downstream store.

The export command will:
  1. Crawl inputs, outputs, and protocols from the seed process
  2. Stage every metadata document under a distributed lock
  3. Register staged files and data files in the downstream store
  4. Register the bundle and persist its manifest in the registry

Examples:
  biobroker export --submission <envelope-uuid> --process <process-uuid>
  biobroker export --submission <envelope-uuid> --process <process-uuid> --bundle <bundle-uuid>
  biobroker export --submission <envelope-uuid> --bundle <bundle-uuid> --update --metadata-url <url>`,
		RunE: runExport,
	}

	cmd.Flags().StringVar(&exportSubmission, "submission", "", "Submission envelope UUID")
	cmd.Flags().StringVar(&exportProcess, "process", "", "Seed process UUID")
	cmd.Flags().StringVar(&exportBundle, "bundle", "", "Bundle UUID (defaults to a fresh UUID)")
	cmd.Flags().StringVar(&exportCreatorUID, "creator-uid", "8008", "Creator uid recorded on store writes")
	cmd.Flags().BoolVar(&exportUpdate, "update", false, "Update an existing bundle instead of creating one")
	cmd.Flags().StringSliceVar(&exportMetadataURLs, "metadata-url", nil, "Updated metadata resource URLs (with --update)")
	cmd.Flags().BoolVarP(&exportVerbose, "verbose", "v", false, "Enable debug logging")
	cmd.MarkFlagRequired("submission")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	steps := ui.NewStepper(cmd.OutOrStdout(), false)

	if !exportUpdate && exportProcess == "" {
		return fmt.Errorf("a seed process UUID is required (--process)")
	}
	if exportUpdate && exportBundle == "" {
		return fmt.Errorf("a bundle UUID is required with --update (--bundle)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(exportVerbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	exporter, err := buildExporter(cfg, log)
	if err != nil {
		return err
	}

	var manifest *export.Manifest
	if exportUpdate {
		steps.Phase("Updating bundle %s", exportBundle)
		manifest, err = exporter.UpdateBundle(ctx, exportSubmission, exportBundle, exportMetadataURLs)
	} else {
		bundleUUID := exportBundle
		if bundleUUID == "" {
			bundleUUID = uuid.NewString()
		}
		steps.Phase("Exporting process %s into bundle %s", exportProcess, bundleUUID)
		manifest, err = exporter.ExportBundle(ctx, exportSubmission, exportProcess, bundleUUID)
	}
	if err != nil {
		steps.Failed(err)
		return err
	}

	steps.Done("export complete")
	fmt.Printf("bundle %s version %s\n", manifest.BundleUUID, manifest.BundleVersion)
	return nil
}

// buildExporter wires the export pipeline from config
func buildExporter(cfg *config.Config, log *zap.Logger) (*export.Exporter, error) {
	client := registry.NewClient(registry.Config{
		BaseURL: cfg.Registry.URL,
		Token:   cfg.Registry.Token,
		Logger:  log,
	})
	uploader := upload.NewClient(upload.Config{
		BaseURL:    cfg.Upload.URL,
		APIVersion: cfg.Upload.APIVersion,
		APIKey:     cfg.Upload.APIKey,
		Logger:     log,
	})
	store := dss.NewClient(dss.Config{
		BaseURL: cfg.Store.URL,
		Replica: cfg.Store.Replica,
		Logger:  log,
	})

	repository, err := stagingRepository(cfg, client)
	if err != nil {
		return nil, err
	}
	stagingService := staging.NewService(repository, uploader,
		cfg.StagingWaitInterval(), cfg.Staging.WaitAttempts, log)
	storageService := export.NewStorageService(client, 0, 0, 0, log)

	return export.NewExporter(export.ExporterConfig{
		Registry:   client,
		Crawler:    crawler.New(client, log),
		Staging:    stagingService,
		Storage:    storageService,
		Store:      store,
		Areas:      uploader,
		CreatorUID: exportCreatorUID,
		Logger:     log,
	}), nil
}

// stagingRepository picks the staging lock backend. Redis is used when
// configured; otherwise locks live in the registry.
func stagingRepository(cfg *config.Config, client *registry.Client) (staging.InfoRepository, error) {
	if cfg.Staging.RedisURL == "" {
		return staging.NewRegistryRepository(client), nil
	}
	options, err := redis.ParseURL(cfg.Staging.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid staging redis url: %w", err)
	}
	return staging.NewRedisRepository(redis.NewClient(options)), nil
}
