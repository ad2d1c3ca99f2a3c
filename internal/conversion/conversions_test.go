package conversion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biobroker/biobroker/internal/graph"
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
				"biomaterial_id": {"type": "string", "user_friendly": "Biomaterial ID"},
				"ncbi_taxon_id": {"type": "array", "items": {"type": "integer"}}
			}
		},
		"is_living": {"type": "boolean", "user_friendly": "Is living?"},
		"weight": {"type": "number"},
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

const processSchema = `{
	"$id": "https://schema.example.org/type/process/6.0.0/process",
	"type": "object",
	"title": "Process",
	"properties": {
		"process_core": {
			"$id": "https://schema.example.org/core/process/5.0.0/process_core",
			"type": "object",
			"properties": {
				"process_id": {"type": "string", "user_friendly": "Process ID"},
				"process_name": {"type": "string"}
			}
		}
	}
}`

func testTemplate(t *testing.T) *schema.Template {
	t.Helper()
	var docs []*jsondoc.Node
	for _, raw := range []string{donorSchema, processSchema} {
		doc, err := jsondoc.Parse([]byte(raw))
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	template, err := schema.Build(context.Background(), schema.BuilderConfig{Documents: docs})
	require.NoError(t, err)
	return template
}

func TestConvertBoolean(t *testing.T) {
	for _, raw := range []string{"true", "True", "yes", "YES"} {
		v, err := convertBoolean(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, true, v, raw)
	}
	for _, raw := range []string{"false", "no", "No "} {
		v, err := convertBoolean(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, false, v, raw)
	}

	_, err := convertBoolean("maybe")
	var invalid *InvalidBooleanValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "maybe", invalid.Value)
}

func TestConvertCellMultivalue(t *testing.T) {
	v, err := convertCell("9606||10090", true, convertInteger)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(9606), int64(10090)}, v)

	v, err = convertCell(" homo sapiens ", false, convertString)
	require.NoError(t, err)
	assert.Equal(t, "homo sapiens", v)

	_, err = convertCell("12||nope", true, convertInteger)
	assert.Error(t, err)
}

func TestColumnClassification(t *testing.T) {
	template := testTemplate(t)

	tests := []struct {
		header    string
		sheetType string
		want      Type
	}{
		{"donor_organism.biomaterial_core.biomaterial_id", "donor_organism", Identity},
		{"donor_organism.uuid", "donor_organism", ExternalReference},
		{"donor_organism.biomaterial_core.biomaterial_id", "process", LinkedIdentity},
		{"donor_organism.uuid", "process", LinkedExternalReference},
		{"process.process_core.process_name", "donor_organism", LinkingDetail},
		{"donor_organism.is_living", "donor_organism", MemberField},
		{"donor_organism.genus_species.text", "donor_organism", FieldOfListElement},
	}
	for _, tt := range tests {
		spec, err := NewColumnSpec(tt.header, tt.sheetType, template)
		require.NoError(t, err, tt.header)
		assert.Equal(t, tt.want, spec.Type, "%s on sheet %s", tt.header, tt.sheetType)
	}
}

func TestColumnSpecRejectsUnknownHeaders(t *testing.T) {
	template := testTemplate(t)
	_, err := NewColumnSpec("donor_organism.no_such_field", "donor_organism", template)
	var unknown *schema.UnknownKeyError
	assert.ErrorAs(t, err, &unknown)
}

func applyColumn(t *testing.T, template *schema.Template, entity *graph.Entity, header, sheetType, raw string) {
	t.Helper()
	spec, err := NewColumnSpec(header, sheetType, template)
	require.NoError(t, err)
	require.NoError(t, NewCellConversion(spec).Apply(entity, raw))
}

func TestIdentityConversionSetsObjectID(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("donor_organism", "biomaterial", "")

	applyColumn(t, template, entity, "donor_organism.biomaterial_core.biomaterial_id", "donor_organism", "donor_1")

	assert.Equal(t, "donor_1", entity.ObjectID)
	id, _ := entity.Content.GetPath("biomaterial_core.biomaterial_id")
	assert.Equal(t, "donor_1", id)
}

func TestMemberFieldConversion(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("donor_organism", "biomaterial", "donor_1")

	applyColumn(t, template, entity, "donor_organism.is_living", "donor_organism", "yes")
	applyColumn(t, template, entity, "donor_organism.biomaterial_core.ncbi_taxon_id", "donor_organism", "9606")

	living, _ := entity.Content.GetPath("is_living")
	assert.Equal(t, true, living)
	taxa, _ := entity.Content.GetPath("biomaterial_core.ncbi_taxon_id")
	assert.Equal(t, []any{int64(9606)}, taxa)
}

func TestLinkedIdentityConversionDeclaresLinks(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("sequence_file", "file", "file_1")

	applyColumn(t, template, entity, "donor_organism.biomaterial_core.biomaterial_id", "sequence_file", "donor_1||donor_2")

	assert.Equal(t, []string{"donor_1", "donor_2"}, entity.Links("biomaterial"))
}

func TestExternalReferenceConversionMarksReference(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("donor_organism", "biomaterial", "")

	applyColumn(t, template, entity, "donor_organism.uuid", "donor_organism", "3f1c87c2-560e-4252-a47d-b46b1e4c1c36")

	assert.True(t, entity.IsReference)
	assert.Equal(t, "3f1c87c2-560e-4252-a47d-b46b1e4c1c36", entity.RegistryUUID)
	assert.Equal(t, "3f1c87c2-560e-4252-a47d-b46b1e4c1c36", entity.ObjectID)
}

func TestLinkedExternalReferenceConversion(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("sequence_file", "file", "file_1")

	applyColumn(t, template, entity, "donor_organism.uuid", "sequence_file", "3f1c87c2-560e-4252-a47d-b46b1e4c1c36")

	assert.Equal(t, []string{"3f1c87c2-560e-4252-a47d-b46b1e4c1c36"}, entity.ExternalLinksByEntity["biomaterial"])
}

func TestLinkingDetailConversionFillsConnectorContent(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("donor_organism", "biomaterial", "donor_1")

	applyColumn(t, template, entity, "process.process_core.process_name", "donor_organism", "dissociation run 4")

	name, _ := entity.LinkingDetails.GetPath("process_core.process_name")
	assert.Equal(t, "dissociation run 4", name)
	// The entity's own content stays untouched.
	_, ok := entity.Content.GetPath("process_core.process_name")
	assert.False(t, ok)
}

func TestListElementConversionGroupsSubfields(t *testing.T) {
	template := testTemplate(t)
	entity := graph.NewEntity("donor_organism", "biomaterial", "donor_1")

	// text then ontology fill one element; a second text starts a new one.
	applyColumn(t, template, entity, "donor_organism.genus_species.text", "donor_organism", "Homo sapiens")
	applyColumn(t, template, entity, "donor_organism.genus_species.ontology", "donor_organism", "NCBITAXON:9606")
	applyColumn(t, template, entity, "donor_organism.genus_species.text", "donor_organism", "Mus musculus")

	raw, ok := entity.Content.GetPath("genus_species")
	require.True(t, ok)
	list, ok := raw.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)

	first := list[0].(*jsondoc.Node)
	text, _ := first.GetPath("text")
	ontology, _ := first.GetPath("ontology")
	assert.Equal(t, "Homo sapiens", text)
	assert.Equal(t, "NCBITAXON:9606", ontology)

	second := list[1].(*jsondoc.Node)
	text, _ = second.GetPath("text")
	assert.Equal(t, "Mus musculus", text)
	_, ok = second.GetPath("ontology")
	assert.False(t, ok)
}
