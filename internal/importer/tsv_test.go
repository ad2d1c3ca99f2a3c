package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadTSVDir(t *testing.T) {
	dir := t.TempDir()
	// Rows 2 and 3 carry a single space so the CSV reader does not drop
	// them as blank lines; the row convention is positional.
	writeTSV(t, dir, "Project.tsv", "Project shortname\n \n \nproject.project_core.project_shortname\nFILL OUT BELOW\nTissue stability\n")
	writeTSV(t, dir, "Donor organism.tsv", "Biomaterial ID\tIs living\n \t \n \t \ndonor_organism.biomaterial_core.biomaterial_id\tdonor_organism.is_living\nFILL OUT BELOW\t \ndonor_1\tyes\n")
	writeTSV(t, dir, "notes.txt", "not a sheet")

	workbook, err := LoadTSVDir(dir)
	require.NoError(t, err)
	require.Len(t, workbook.Sheets, 2)

	// Sheets arrive in file-name order with the .tsv suffix stripped.
	assert.Equal(t, "Donor organism", workbook.Sheets[0].Title)
	assert.Equal(t, "Project", workbook.Sheets[1].Title)

	donor := workbook.Sheets[0]
	assert.Equal(t, []string{"donor_organism.biomaterial_core.biomaterial_id", "donor_organism.is_living"}, donor.HeaderRow())
	rows, numbers := donor.DataRows()
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"donor_1", "yes"}, rows[0])
	assert.Equal(t, []int{6}, numbers)
}

func TestLoadTSVDirEmpty(t *testing.T) {
	_, err := LoadTSVDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .tsv sheets")
}
