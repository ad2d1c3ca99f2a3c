package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biobroker/biobroker/internal/jsondoc"
	"github.com/biobroker/biobroker/internal/schema"
)

const donorSchema = `{
	"$id": "https://schema.example.org/type/biomaterial/5.0.1/donor_organism",
	"type": "object",
	"title": "Donor organism",
	"properties": {
		"biomaterial_core": {
			"$id": "https://schema.example.org/core/biomaterial/7.0.0/biomaterial_core",
			"type": "object",
			"properties": {
				"biomaterial_id": {"type": "string", "user_friendly": "Biomaterial ID"}
			}
		},
		"is_living": {"type": "boolean"},
		"genus_species": {
			"type": "array",
			"items": {
				"$id": "https://schema.example.org/module/ontology/5.3.2/species_ontology",
				"type": "object",
				"properties": {
					"text": {"type": "string"},
					"ontology": {"type": "string"}
				}
			}
		}
	}
}`

const projectSchema = `{
	"$id": "https://schema.example.org/type/project/9.0.2/project",
	"type": "object",
	"title": "Project",
	"properties": {
		"project_core": {
			"$id": "https://schema.example.org/core/project/7.0.0/project_core",
			"type": "object",
			"properties": {
				"project_shortname": {"type": "string", "user_friendly": "Project shortname"}
			}
		}
	}
}`

func importerTemplate(t *testing.T) *schema.Template {
	t.Helper()
	var docs []*jsondoc.Node
	for _, raw := range []string{donorSchema, projectSchema} {
		doc, err := jsondoc.Parse([]byte(raw))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	template, err := schema.Build(context.Background(), schema.BuilderConfig{Documents: docs})
	require.NoError(t, err)
	return template
}

// sheet builds a worksheet with the standard five banner rows before data
func sheet(title string, header []string, data ...[]string) Sheet {
	rows := [][]string{
		{}, // user-friendly labels
		{}, // descriptions
		{}, // guidelines
		header,
		{}, // separator banner
	}
	rows = append(rows, data...)
	return Sheet{Title: title, Rows: rows}
}

func TestImportPrimarySheets(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Donor organism",
			[]string{"donor_organism.biomaterial_core.biomaterial_id", "donor_organism.is_living"},
			[]string{"donor_1", "yes"},
			[]string{}, // blank rows are skipped
			[]string{"donor_2", "no"},
		),
		sheet("Project",
			[]string{"project.project_core.project_shortname"},
			[]string{"Tissue stability"},
		),
	}}

	entities, err := New(importerTemplate(t), nil).Import(workbook)
	require.NoError(t, err)
	assert.Equal(t, 3, entities.Count())

	donor, ok := entities.Get("biomaterial", "donor_1")
	require.True(t, ok)
	assert.Equal(t, "donor_organism", donor.ConcreteType)
	living, _ := donor.Content.Get("is_living")
	assert.Equal(t, true, living)
	describedBy, _ := donor.Content.Get("describedBy")
	assert.Equal(t, "https://schema.example.org/type/biomaterial/5.0.1/donor_organism", describedBy)
	schemaType, _ := donor.Content.Get("schema_type")
	assert.Equal(t, "biomaterial", schemaType)

	// The project row has no identifying cell; its id is synthesized.
	project, err := entities.Project()
	require.NoError(t, err)
	assert.Equal(t, "project_1", project.ObjectID)
}

func TestImportSkipsUnrecognizedSheets(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Shopping list", []string{"item"}, []string{"milk"}),
	}}

	entities, err := New(importerTemplate(t), nil).Import(workbook)
	require.NoError(t, err)
	assert.Equal(t, 0, entities.Count())
}

func TestImportModuleSheetExtendsParent(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Donor organism",
			[]string{"donor_organism.biomaterial_core.biomaterial_id"},
			[]string{"donor_1"},
		),
		sheet("Donor organism - Genus species",
			[]string{"donor_organism.biomaterial_core.biomaterial_id", "donor_organism.genus_species.text", "donor_organism.genus_species.ontology"},
			[]string{"donor_1", "Homo sapiens", "NCBITAXON:9606"},
			[]string{"donor_1", "Mus musculus", "NCBITAXON:10090"},
		),
	}}

	entities, err := New(importerTemplate(t), nil).Import(workbook)
	require.NoError(t, err)

	donor, ok := entities.Get("biomaterial", "donor_1")
	require.True(t, ok)
	raw, ok := donor.Content.GetPath("genus_species")
	require.True(t, ok)
	list := raw.([]any)
	require.Len(t, list, 2)
	text, _ := list[1].(*jsondoc.Node).GetPath("text")
	assert.Equal(t, "Mus musculus", text)
}

func TestImportModuleSheetRequiresParentIdentity(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Donor organism",
			[]string{"donor_organism.biomaterial_core.biomaterial_id"},
			[]string{"donor_1"},
		),
		sheet("Donor organism - Genus species",
			[]string{"donor_organism.genus_species.text"},
			[]string{"Homo sapiens"},
		),
	}}

	_, err := New(importerTemplate(t), nil).Import(workbook)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not identify its parent")
}

func TestImportModuleSheetRejectsUnknownParentRow(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Donor organism",
			[]string{"donor_organism.biomaterial_core.biomaterial_id"},
			[]string{"donor_1"},
		),
		sheet("Donor organism - Genus species",
			[]string{"donor_organism.biomaterial_core.biomaterial_id", "donor_organism.genus_species.text"},
			[]string{"donor_404", "Homo sapiens"},
		),
	}}

	_, err := New(importerTemplate(t), nil).Import(workbook)
	require.Error(t, err)
}

func TestImportMaterializesExternalLinks(t *testing.T) {
	const uuid = "3f1c87c2-560e-4252-a47d-b46b1e4c1c36"
	workbook := &Workbook{Sheets: []Sheet{
		sheet("Donor organism",
			[]string{"donor_organism.biomaterial_core.biomaterial_id"},
			[]string{"donor_1"},
		),
		sheet("Project",
			[]string{"project.project_core.project_shortname", "donor_organism.uuid"},
			[]string{"Tissue stability", uuid},
		),
	}}

	entities, err := New(importerTemplate(t), nil).Import(workbook)
	require.NoError(t, err)

	// The UUID column declared an external link; a reference entity was
	// materialized for it.
	reference, ok := entities.Get("biomaterial", uuid)
	require.True(t, ok)
	assert.True(t, reference.IsReference)
	assert.Equal(t, uuid, reference.RegistryUUID)

	project, err := entities.Project()
	require.NoError(t, err)
	assert.Contains(t, project.Links("biomaterial"), uuid)
}

func TestWorkbookSchemaURLs(t *testing.T) {
	workbook := &Workbook{Sheets: []Sheet{
		{Title: "Schemas", Rows: [][]string{
			{"Schemas"},
			{"https://schema.example.org/type/biomaterial/5.0.1/donor_organism"},
			{" "},
			{"https://schema.example.org/type/project/9.0.2/project"},
		}},
	}}
	assert.Equal(t, []string{
		"https://schema.example.org/type/biomaterial/5.0.1/donor_organism",
		"https://schema.example.org/type/project/9.0.2/project",
	}, workbook.SchemaURLs())

	empty := &Workbook{}
	assert.Empty(t, empty.SchemaURLs())
}

func TestModuleSheetTitle(t *testing.T) {
	parent, field, ok := moduleSheetTitle("Donor organism - Genus species")
	require.True(t, ok)
	assert.Equal(t, "Donor organism", parent)
	assert.Equal(t, "Genus species", field)

	_, _, ok = moduleSheetTitle("Donor organism")
	assert.False(t, ok)
	_, _, ok = moduleSheetTitle(" - Genus species")
	assert.False(t, ok)
}
