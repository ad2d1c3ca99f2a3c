package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/registry"
)

// Crawler walks the registry from a seed process, alternating between
// metadata nodes and the processes that derived them. Per-relation results
// are memoized for the lifetime of one crawl.
type Crawler struct {
	client *registry.Client
	log    *zap.Logger
}

// New creates a crawler
func New(client *registry.Client, log *zap.Logger) *Crawler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Crawler{client: client, log: log}
}

// crawl carries the per-call memo so parallel exports never share state
type crawl struct {
	*Crawler
	graph *ExperimentGraph
	memo  map[string][]*registry.Resource
}

// Crawl enumerates the experiment graph reachable from the seed process
func (c *Crawler) Crawl(ctx context.Context, seed *registry.Resource) (*ExperimentGraph, error) {
	run := &crawl{
		Crawler: c,
		graph:   NewExperimentGraph(),
		memo:    make(map[string][]*registry.Resource),
	}

	frontier, err := run.seedFrontier(ctx, seed)
	if err != nil {
		return nil, err
	}

	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]
		if run.graph.HasNode(node.UUID()) {
			continue
		}
		inputs, err := run.visit(ctx, node)
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, inputs...)
	}

	c.log.Debug("crawl complete",
		zap.String("seed_process", seed.UUID()),
		zap.Int("nodes", len(run.graph.Nodes())),
		zap.Int("links", len(run.graph.Links())))
	return run.graph, nil
}

// seedFrontier enumerates the seed process's derived biomaterials and files
func (r *crawl) seedFrontier(ctx context.Context, seed *registry.Resource) ([]*registry.Resource, error) {
	var frontier []*registry.Resource
	for _, rel := range []struct{ rel, embedded string }{
		{"derivedBiomaterials", "biomaterials"},
		{"derivedFiles", "files"},
	} {
		derived, err := r.related(ctx, seed, rel.rel, rel.embedded)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate %s of seed process: %w", rel.rel, err)
		}
		frontier = append(frontier, derived...)
	}
	if len(frontier) == 0 {
		return nil, fmt.Errorf("process %s derives no biomaterials or files", seed.UUID())
	}
	return frontier, nil
}

// visit processes one frontier node: every process that derived it
// contributes a (inputs → node) link, and the inputs join the frontier.
func (r *crawl) visit(ctx context.Context, nodeResource *registry.Resource) ([]*registry.Resource, error) {
	node := r.graph.AddNode(nodeResource)

	processes, err := r.related(ctx, nodeResource, "derivedByProcesses", "processes")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deriving processes of %s: %w", node.UUID, err)
	}

	var frontier []*registry.Resource
	for _, process := range processes {
		r.graph.AddNode(process)
		link := r.graph.linkFor(process.UUID(), ConcreteType(process))
		link.addOutput(node.UUID)
		if link.OutputType == "" {
			link.OutputType = node.MetadataType
		}

		for _, rel := range []struct{ rel, embedded, inputType string }{
			{"inputBiomaterials", "biomaterials", "biomaterial"},
			{"inputFiles", "files", "file"},
		} {
			inputs, err := r.related(ctx, process, rel.rel, rel.embedded)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch %s of process %s: %w", rel.rel, process.UUID(), err)
			}
			for _, input := range inputs {
				link.addInput(input.UUID())
				if link.InputType == "" {
					link.InputType = rel.inputType
				}
				frontier = append(frontier, input)
			}
		}

		protocols, err := r.related(ctx, process, "protocols", "protocols")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch protocols of process %s: %w", process.UUID(), err)
		}
		for _, protocol := range protocols {
			r.graph.AddNode(protocol)
			link.addProtocol(ProtocolRef{
				ProtocolType: ConcreteType(protocol),
				ProtocolID:   protocolID(protocol),
			})
		}
	}
	return frontier, nil
}

// related memoizes the client's paginated relation walk per (resource, rel)
func (r *crawl) related(ctx context.Context, from *registry.Resource, rel, embedded string) ([]*registry.Resource, error) {
	key := from.SelfURL() + "|" + rel
	if cached, ok := r.memo[key]; ok {
		return cached, nil
	}
	resources, err := r.client.Related(ctx, from, rel, embedded)
	if err != nil {
		return nil, err
	}
	r.memo[key] = resources
	return resources, nil
}

// protocolID reads the identifying protocol id from a protocol's content
func protocolID(protocol *registry.Resource) string {
	if id, ok := protocol.Content().GetPath("protocol_core.protocol_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
