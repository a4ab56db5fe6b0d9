package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile_CSV(t *testing.T) {
	path := writeFile(t, "ref.csv", `Item Sold,HS Code,Category,C Nbr,Art
Silver Bracelet,7117.90.00,7117,4411,3
"Polo Shirt, Cotton",62053000,,,

Straw Hat,6504.00.00,,,
`)

	data, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, data.Products, 3)

	assert.Equal(t, Entry{Key: "Silver Bracelet", HSCode: "71179000", Category: "7117", CNumber: "4411", Line: 3}, data.Products[0])
	assert.Equal(t, "Polo Shirt, Cotton", data.Products[1].Key)
	assert.Equal(t, "65040000", data.Products[2].HSCode)
}

func TestLoadFile_CSVErrors(t *testing.T) {
	t.Run("missing HS column", func(t *testing.T) {
		path := writeFile(t, "ref.csv", "Description,Price\nHat,10\n")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "HS code column")
	})

	t.Run("bad line number", func(t *testing.T) {
		path := writeFile(t, "ref.csv", "Description,HS,Line\nHat,65040000,abc\n")
		_, err := LoadFile(path)
		assert.ErrorContains(t, err, "invalid line number")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadFile("ref.json")
		assert.Error(t, err)
	})
}

func TestLoadFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", SheetProducts))
	require.NoError(t, f.SetSheetRow(SheetProducts, "A1", &[]interface{}{"Description", "HS Code", "Origin"}))
	require.NoError(t, f.SetSheetRow(SheetProducts, "A2", &[]interface{}{"Silver Bracelet", "71179000", "it"}))
	_, err := f.NewSheet(SheetCountries)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(SheetCountries, "A1", &[]interface{}{"Alias", "Code"}))
	require.NoError(t, f.SetSheetRow(SheetCountries, "A2", &[]interface{}{"Jamaica", "jm"}))

	path := filepath.Join(t.TempDir(), "ref.xlsx")
	require.NoError(t, f.SaveAs(path))

	data, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, data.Products, 1)
	assert.Equal(t, "IT", data.Products[0].Origin)
	assert.Equal(t, map[string]string{"Jamaica": "JM"}, data.Countries)
	assert.Nil(t, data.Offices)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "ref.yaml", `
products:
  - key: Straw Hat
    hs_code: "6504.00.00"
countries:
  Jamaica: JM
keywords:
  - keyword: FEDORA
    hs_code: "65040000"
`)

	data, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "65040000", data.Products[0].HSCode)
	assert.Equal(t, "JM", data.Countries["Jamaica"])

	c, err := Open(path)
	require.NoError(t, err)
	code, ok := c.Country("jamaica")
	assert.True(t, ok)
	assert.Equal(t, "JM", code)

	hs, _, ok := c.Keyword("grey fedora")
	assert.True(t, ok)
	assert.Equal(t, "65040000", hs)
	_, _, ok = c.Keyword("sun hat")
	assert.False(t, ok, "overlay keywords replace the builtin table")
}

func TestOpen_Builtin(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.True(t, c.HasOffice("LCVFP"))
}
