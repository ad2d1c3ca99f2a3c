package graph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/schema"
)

// Relationship names used when wiring entities in the registry
const (
	RelProjects           = "projects"
	RelProtocols          = "protocols"
	RelSupplementaryFiles = "supplementaryFiles"
	RelInputToProcesses   = "inputToProcesses"
	RelDerivedByProcesses = "derivedByProcesses"
)

// DirectLink is one edge the submitter must create in the registry
type DirectLink struct {
	SourceType   string
	SourceID     string
	TargetType   string
	TargetID     string
	Relationship string
}

// String renders the link for logs and messages
func (l DirectLink) String() string {
	return fmt.Sprintf("%s/%s --%s--> %s/%s",
		l.SourceType, l.SourceID, l.Relationship, l.TargetType, l.TargetID)
}

// admissibleLinks is the inter-type declarative link topology a workbook may
// carry. Everything else is rejected before any registry call.
var admissibleLinks = map[string]map[string]bool{
	"biomaterial": {"biomaterial": true, "process": true, "protocol": true},
	"file":        {"biomaterial": true, "file": true, "process": true, "protocol": true},
}

// Linker validates the declared link topology of an entity map, synthesizes
// the connector processes that materialize input→output relationships, and
// computes the direct links the submitter will create.
type Linker struct {
	entities  *EntityMap
	template  *schema.Template
	log       *zap.Logger
	processes *processBuilder
	links     []DirectLink
}

// NewLinker creates a linker over an imported entity map. The process id
// counter is seeded per linker so runs are deterministic.
func NewLinker(entities *EntityMap, template *schema.Template, log *zap.Logger) *Linker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Linker{
		entities:  entities,
		template:  template,
		log:       log,
		processes: newProcessBuilder(template),
	}
}

// Run validates the topology and returns the direct links in creation order.
// Synthesized connector processes are added to the entity map as a side
// effect.
func (l *Linker) Run() ([]DirectLink, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	project, err := l.entities.Project()
	if err != nil {
		return nil, err
	}

	// Snapshot before synthesis mutates the map.
	entities := l.entities.NonReferences()

	for _, entity := range entities {
		switch entity.DomainType {
		case "project", "protocol", "file":
		default:
			l.add(entity, project, RelProjects)
		}
		if entity.ConcreteType == "supplementary_file" {
			l.add(project, entity, RelSupplementaryFiles)
		}
	}

	for _, entity := range entities {
		if !entity.HasInputs() {
			continue
		}
		if err := l.linkThroughProcess(entity, project); err != nil {
			return nil, err
		}
	}

	l.log.Debug("linker finished",
		zap.Int("direct_links", len(l.links)),
		zap.Int("synthesized_processes", l.processes.count))
	return l.links, nil
}

// validate enforces the admissible link matrix and target existence
func (l *Linker) validate() error {
	for _, entity := range l.entities.Entities() {
		for targetType, ids := range entity.LinksByEntity {
			if !admissibleLinks[entity.DomainType][targetType] {
				return &InvalidLinkError{SourceType: entity.DomainType, TargetType: targetType}
			}
			if targetType == "process" {
				// Declared processes may name a row in a process sheet or a
				// process to synthesize; existence is checked later.
				if _, err := entity.DeclaredProcessID(); err != nil {
					return err
				}
				continue
			}
			for _, id := range ids {
				if _, ok := l.entities.Get(targetType, id); !ok {
					return &LinkedEntityNotFoundError{DomainType: targetType, ObjectID: id}
				}
			}
		}
	}
	return nil
}

// linkThroughProcess locates or synthesizes the connector process for one
// output entity and wires inputs, protocols, and the output through it.
func (l *Linker) linkThroughProcess(entity, project *Entity) error {
	processID, err := entity.DeclaredProcessID()
	if err != nil {
		return err
	}

	var process *Entity
	if processID != "" {
		existing, ok := l.entities.Get("process", processID)
		if !ok {
			process = l.processes.withID(processID, entity)
			if err := l.entities.Add(process); err != nil {
				return err
			}
		} else {
			process = existing
		}
	} else {
		process = l.processes.synthesize(entity)
		if err := l.entities.Add(process); err != nil {
			return err
		}
	}

	l.add(process, project, RelProjects)
	for _, protocolID := range entity.Links("protocol") {
		protocol, ok := l.entities.Get("protocol", protocolID)
		if !ok {
			return &LinkedEntityNotFoundError{DomainType: "protocol", ObjectID: protocolID}
		}
		l.add(process, protocol, RelProtocols)
	}
	for _, inputType := range []string{"biomaterial", "file"} {
		for _, inputID := range entity.Links(inputType) {
			input, ok := l.entities.Get(inputType, inputID)
			if !ok {
				return &LinkedEntityNotFoundError{DomainType: inputType, ObjectID: inputID}
			}
			l.add(input, process, RelInputToProcesses)
		}
	}
	l.add(entity, process, RelDerivedByProcesses)
	return nil
}

func (l *Linker) add(source, target *Entity, relationship string) {
	link := DirectLink{
		SourceType:   source.DomainType,
		SourceID:     source.ObjectID,
		TargetType:   target.DomainType,
		TargetID:     target.ObjectID,
		Relationship: relationship,
	}
	for _, existing := range l.links {
		if existing == link {
			return
		}
	}
	l.links = append(l.links, link)
}

// Links returns the computed direct links
func (l *Linker) Links() []DirectLink {
	out := make([]DirectLink, len(l.links))
	copy(out, l.links)
	return out
}

// processBuilder owns the monotonic counter for synthesized connector
// process ids.
type processBuilder struct {
	template *schema.Template
	count    int
}

func newProcessBuilder(template *schema.Template) *processBuilder {
	return &processBuilder{template: template}
}

// synthesize manufactures the next connector process for an output entity
func (b *processBuilder) synthesize(output *Entity) *Entity {
	b.count++
	return b.withID(fmt.Sprintf("process_id_%d", b.count), output)
}

// withID manufactures a connector process with a declared id. The output
// entity's accumulated linking details become the process content.
func (b *processBuilder) withID(processID string, output *Entity) *Entity {
	process := NewEntity("process", "process", processID)
	if output.LinkingDetails != nil {
		process.Content = output.LinkingDetails.Clone()
	}
	process.Content.SetPath("process_core.process_id", processID)
	process.Content.Set("schema_type", "process")
	if describedBy, err := b.template.DescribedBy("process"); err == nil {
		process.Content.Set("describedBy", describedBy)
	}
	return process
}
