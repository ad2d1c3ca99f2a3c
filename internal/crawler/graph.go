// Package crawler enumerates the experiment sub-graph connected to one
// process in the registry: inputs, outputs, protocols, and the project.
package crawler

import (
	"github.com/biobroker/biobroker/internal/registry"
	"github.com/biobroker/biobroker/internal/schema"
)

// Node is one metadata resource in the experiment graph
type Node struct {
	// UUID is the registry UUID the graph is keyed by
	UUID string
	// MetadataType is the domain family (biomaterial, file, process,
	// protocol, project), derived from the content's describedBy.
	MetadataType string
	// Resource is the full registry document
	Resource *registry.Resource
}

// NewNode wraps a registry resource, deriving its metadata type
func NewNode(resource *registry.Resource) Node {
	return Node{
		UUID:         resource.UUID(),
		MetadataType: MetadataType(resource),
		Resource:     resource,
	}
}

// MetadataType derives the domain family of a resource from its declared
// schema URL; unknown URLs yield an empty type.
func MetadataType(resource *registry.Resource) string {
	desc, err := schema.ParseDescriptor(resource.DescribedBy())
	if err != nil {
		return ""
	}
	if desc.HighLevelEntity == schema.EntitySystem {
		return desc.Module
	}
	return desc.DomainType()
}

// ConcreteType derives the leaf schema name of a resource
func ConcreteType(resource *registry.Resource) string {
	desc, err := schema.ParseDescriptor(resource.DescribedBy())
	if err != nil {
		return ""
	}
	return desc.ConcreteType()
}

// ProtocolRef identifies one protocol applied by a process
type ProtocolRef struct {
	ProtocolType string `json:"protocol_type"`
	ProtocolID   string `json:"protocol_id"`
}

// Link is the coalesced record of one process's input→output relationship
type Link struct {
	ProcessUUID string
	ProcessType string
	InputType   string
	Inputs      []string
	OutputType  string
	Outputs     []string
	Protocols   []ProtocolRef

	inputSet  map[string]bool
	outputSet map[string]bool
}

func newLink(processUUID, processType string) *Link {
	return &Link{
		ProcessUUID: processUUID,
		ProcessType: processType,
		inputSet:    make(map[string]bool),
		outputSet:   make(map[string]bool),
	}
}

func (l *Link) addInput(uuid string) {
	if !l.inputSet[uuid] {
		l.inputSet[uuid] = true
		l.Inputs = append(l.Inputs, uuid)
	}
}

func (l *Link) addOutput(uuid string) {
	if !l.outputSet[uuid] {
		l.outputSet[uuid] = true
		l.Outputs = append(l.Outputs, uuid)
	}
}

func (l *Link) addProtocol(ref ProtocolRef) {
	for _, existing := range l.Protocols {
		if existing == ref {
			return
		}
	}
	l.Protocols = append(l.Protocols, ref)
}

// ExperimentGraph is the crawl result: metadata nodes de-duplicated by UUID
// and links keyed by process UUID.
type ExperimentGraph struct {
	nodes     map[string]Node
	nodeOrder []string
	links     map[string]*Link
	linkOrder []string
}

// NewExperimentGraph creates an empty graph
func NewExperimentGraph() *ExperimentGraph {
	return &ExperimentGraph{
		nodes: make(map[string]Node),
		links: make(map[string]*Link),
	}
}

// AddNode inserts a resource, de-duplicating by UUID
func (g *ExperimentGraph) AddNode(resource *registry.Resource) Node {
	node := NewNode(resource)
	if existing, ok := g.nodes[node.UUID]; ok {
		return existing
	}
	g.nodes[node.UUID] = node
	g.nodeOrder = append(g.nodeOrder, node.UUID)
	return node
}

// HasNode reports whether a UUID was already visited
func (g *ExperimentGraph) HasNode(uuid string) bool {
	_, ok := g.nodes[uuid]
	return ok
}

// Nodes returns all nodes in visit order
func (g *ExperimentGraph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodeOrder))
	for _, uuid := range g.nodeOrder {
		out = append(out, g.nodes[uuid])
	}
	return out
}

// NodesOfType returns the nodes of one metadata type in visit order
func (g *ExperimentGraph) NodesOfType(metadataType string) []Node {
	var out []Node
	for _, node := range g.Nodes() {
		if node.MetadataType == metadataType {
			out = append(out, node)
		}
	}
	return out
}

// linkFor returns the (possibly new) coalesced link for a process
func (g *ExperimentGraph) linkFor(processUUID, processType string) *Link {
	if link, ok := g.links[processUUID]; ok {
		return link
	}
	link := newLink(processUUID, processType)
	g.links[processUUID] = link
	g.linkOrder = append(g.linkOrder, processUUID)
	return link
}

// Links returns the coalesced links in first-seen order
func (g *ExperimentGraph) Links() []*Link {
	out := make([]*Link, 0, len(g.linkOrder))
	for _, uuid := range g.linkOrder {
		out = append(out, g.links[uuid])
	}
	return out
}
