package importer

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/conversion"
	"github.com/biobroker/biobroker/internal/graph"
	"github.com/biobroker/biobroker/internal/schema"
)

// RowTemplate compiles a sheet's machine header into positional cell
// conversions plus the default content every imported document carries.
type RowTemplate struct {
	concreteType string
	domainType   string
	describedBy  string
	conversions  []conversion.CellConversion
	synthesized  int
	log          *zap.Logger
}

// newRowTemplate builds the template for one sheet. Header cells that do not
// resolve against the catalog are logged and skipped rather than aborting
// the sheet.
func newRowTemplate(sheetType string, header []string, template *schema.Template, log *zap.Logger) (*RowTemplate, error) {
	domainType, err := template.DomainType(sheetType)
	if err != nil {
		return nil, err
	}
	describedBy, err := template.DescribedBy(sheetType)
	if err != nil {
		return nil, err
	}

	rt := &RowTemplate{
		concreteType: sheetType,
		domainType:   domainType,
		describedBy:  describedBy,
		conversions:  make([]conversion.CellConversion, len(header)),
		log:          log,
	}

	for i, cell := range header {
		path := strings.TrimSpace(cell)
		if path == "" {
			continue
		}
		spec, err := conversion.NewColumnSpec(path, sheetType, template)
		if err != nil {
			var unknown *schema.UnknownKeyError
			if errors.As(err, &unknown) {
				log.Warn("skipping unknown column",
					zap.String("sheet_type", sheetType),
					zap.String("path", path))
				continue
			}
			return nil, err
		}
		rt.conversions[i] = conversion.NewCellConversion(spec)
	}
	return rt, nil
}

// Import converts one data row into an entity. Rows that produce no
// identifying cell receive a synthesized object id, monotone per sheet;
// identified reports whether the row carried its own identity.
func (rt *RowTemplate) Import(row []string, location graph.SheetLocation) (entity *graph.Entity, identified bool, err error) {
	entity = graph.NewEntity(rt.concreteType, rt.domainType, "")
	entity.Location = location
	entity.Content.Set("describedBy", rt.describedBy)
	entity.Content.Set("schema_type", rt.domainType)

	for i, conv := range rt.conversions {
		if conv == nil || i >= len(row) {
			continue
		}
		raw := row[i]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := conv.Apply(entity, raw); err != nil {
			return nil, false, fmt.Errorf("%s: %w", location, err)
		}
	}

	if entity.ObjectID == "" {
		rt.synthesized++
		entity.ObjectID = fmt.Sprintf("%s_%d", rt.concreteType, rt.synthesized)
		return entity, false, nil
	}
	return entity, true, nil
}

// listField returns the content path of the multivalued object property this
// template's columns feed, for module sheets.
func (rt *RowTemplate) listField() (string, bool) {
	for _, conv := range rt.conversions {
		if conv == nil {
			continue
		}
		if spec := conv.Spec(); spec.Type == conversion.FieldOfListElement {
			return spec.ListPath, true
		}
	}
	return "", false
}
