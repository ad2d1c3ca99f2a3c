package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/jsondoc"
)

// BuilderConfig drives template construction. Exactly one of URLs and
// Documents must be supplied; when neither is, Discover provides the list of
// latest submittable schema URLs.
type BuilderConfig struct {
	// URLs of the metadata schemas to load
	URLs []string
	// Documents are already-deserialized schema objects
	Documents []*jsondoc.Node
	// Discover lists the latest submittable schema URLs when no explicit
	// list is supplied.
	Discover func(ctx context.Context) ([]string, error)
	// Fetch loads schema and migration documents; also used as the $ref
	// loader during resolution.
	Fetch Fetcher
	// Migrations is the parsed property-migration ledger. When nil and
	// MigrationsURL is set, the ledger is fetched and parsed.
	Migrations    *Migrations
	MigrationsURL string
	// Logger is optional; zap.NewNop is used when absent
	Logger *zap.Logger
}

// Build resolves every schema document and assembles the template catalog
func Build(ctx context.Context, cfg BuilderConfig) (*Template, error) {
	if len(cfg.URLs) > 0 && len(cfg.Documents) > 0 {
		return nil, fmt.Errorf("schema builder accepts either urls or documents, not both")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	urls := cfg.URLs
	if len(urls) == 0 && len(cfg.Documents) == 0 {
		if cfg.Discover == nil {
			return nil, fmt.Errorf("schema builder needs urls, documents, or a discoverer")
		}
		discovered, err := cfg.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to discover schemas: %w", err)
		}
		urls = discovered
	}

	documents := cfg.Documents
	if len(urls) > 0 {
		if cfg.Fetch == nil {
			return nil, fmt.Errorf("schema builder needs a fetcher to load urls")
		}
		documents = make([]*jsondoc.Node, 0, len(urls))
		for _, url := range urls {
			data, err := cfg.Fetch(ctx, url)
			if err != nil {
				return nil, &RootSchemaError{URL: url, Err: err}
			}
			doc, err := jsondoc.Parse(data)
			if err != nil {
				return nil, &RootSchemaError{URL: url, Err: err}
			}
			documents = append(documents, doc)
		}
	}

	resolver := NewResolver(cfg.Fetch)
	roots := make([]*Property, 0, len(documents))
	for _, doc := range documents {
		resolved, err := resolver.Resolve(ctx, doc)
		if err != nil {
			return nil, err
		}
		root, err := extractRoot(resolved)
		if err != nil {
			return nil, err
		}
		log.Debug("loaded schema",
			zap.String("concrete_type", root.Name),
			zap.String("url", root.Schema.URL))
		roots = append(roots, root)
	}

	migrations := cfg.Migrations
	if migrations == nil && cfg.MigrationsURL != "" {
		if cfg.Fetch == nil {
			return nil, fmt.Errorf("schema builder needs a fetcher to load migrations")
		}
		data, err := cfg.Fetch(ctx, cfg.MigrationsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch property migrations: %w", err)
		}
		migrations, err = ParseMigrations(data)
		if err != nil {
			return nil, err
		}
	}

	template := newTemplate(roots, migrations)
	log.Info("schema template built",
		zap.Int("types", len(roots)),
		zap.Int("migrations", template.Migrations().Len()))
	return template, nil
}
