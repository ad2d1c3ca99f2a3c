package importer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/graph"
	"github.com/biobroker/biobroker/internal/schema"
)

// Importer orchestrates per-sheet import across a workbook and aggregates
// the results into one entity map.
type Importer struct {
	template *schema.Template
	log      *zap.Logger
}

// New creates an importer over a schema template
func New(template *schema.Template, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{template: template, log: log}
}

// Import converts every recognized sheet of the workbook. Primary sheets
// create entities; module sheets extend the list-valued field of their
// parent entities. Sheets whose title resolves to nothing are skipped with a
// warning.
func (i *Importer) Import(workbook *Workbook) (*graph.EntityMap, error) {
	entities := graph.NewEntityMap()
	var moduleSheets []Sheet

	for _, sheet := range workbook.Sheets {
		title := strings.TrimSpace(sheet.Title)
		if strings.EqualFold(title, schemasSheetTitle) {
			continue
		}
		if parent, _, ok := moduleSheetTitle(title); ok {
			if _, known := i.template.TabForSheet(parent); known {
				moduleSheets = append(moduleSheets, sheet)
				continue
			}
		}
		sheetType, ok := i.template.TabForSheet(title)
		if !ok {
			i.log.Warn("skipping unrecognized sheet", zap.String("title", title))
			continue
		}
		if err := i.importPrimary(sheet, sheetType, entities); err != nil {
			return nil, err
		}
	}

	for _, sheet := range moduleSheets {
		if err := i.importModule(sheet, entities); err != nil {
			return nil, err
		}
	}
	if err := materializeExternalLinks(entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// materializeExternalLinks adds a reference entity for every link declared
// by UUID so the linker and submitter treat external targets uniformly.
func materializeExternalLinks(entities *graph.EntityMap) error {
	for _, entity := range entities.Entities() {
		for domain, uuids := range entity.ExternalLinksByEntity {
			for _, uuid := range uuids {
				if _, ok := entities.Get(domain, uuid); !ok {
					ref := graph.NewEntity(domain, domain, uuid)
					ref.IsReference = true
					ref.RegistryUUID = uuid
					if err := entities.Add(ref); err != nil {
						return err
					}
				}
				entity.AddLink(domain, uuid)
			}
		}
	}
	return nil
}

// importPrimary imports the data rows of one primary type sheet
func (i *Importer) importPrimary(sheet Sheet, sheetType string, entities *graph.EntityMap) error {
	rt, err := newRowTemplate(sheetType, sheet.HeaderRow(), i.template, i.log)
	if err != nil {
		return fmt.Errorf("sheet %q: %w", sheet.Title, err)
	}

	rows, numbers := sheet.DataRows()
	for n, row := range rows {
		entity, _, err := rt.Import(row, graph.SheetLocation{Sheet: sheet.Title, Row: numbers[n]})
		if err != nil {
			return err
		}
		if err := entities.Add(entity); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Title, err)
		}
	}
	i.log.Debug("imported sheet",
		zap.String("title", sheet.Title),
		zap.String("concrete_type", sheetType),
		zap.Int("rows", len(rows)))
	return nil
}

// importModule merges the rows of a module sheet into the list-valued field
// of the parent entities they identify. Module rows never create entities.
func (i *Importer) importModule(sheet Sheet, entities *graph.EntityMap) error {
	parentTitle, _, _ := moduleSheetTitle(sheet.Title)
	parentType, _ := i.template.TabForSheet(parentTitle)

	rt, err := newRowTemplate(parentType, sheet.HeaderRow(), i.template, i.log)
	if err != nil {
		return fmt.Errorf("module sheet %q: %w", sheet.Title, err)
	}
	fieldPath, ok := rt.listField()
	if !ok {
		return fmt.Errorf("module sheet %q has no multivalued field columns", sheet.Title)
	}

	parentDomain, err := i.template.DomainType(parentType)
	if err != nil {
		return err
	}

	rows, numbers := sheet.DataRows()
	for n, row := range rows {
		location := graph.SheetLocation{Sheet: sheet.Title, Row: numbers[n]}
		carrier, identified, err := rt.Import(row, location)
		if err != nil {
			return err
		}
		if !identified {
			return fmt.Errorf("%s: module row does not identify its parent %s", location, parentType)
		}
		parent, found := entities.Get(parentDomain, carrier.ObjectID)
		if !found {
			return &graph.LinkedEntityNotFoundError{DomainType: parentDomain, ObjectID: carrier.ObjectID}
		}

		elements, found := carrier.Content.GetPath(fieldPath)
		if !found {
			continue
		}
		list, ok := elements.([]any)
		if !ok {
			list = []any{elements}
		}
		for _, element := range list {
			parent.Content.AppendPath(fieldPath, element)
		}
	}
	i.log.Debug("merged module sheet",
		zap.String("title", sheet.Title),
		zap.String("field", fieldPath),
		zap.Int("rows", len(rows)))
	return nil
}
