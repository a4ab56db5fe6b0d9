package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() Data {
	data := Builtin()
	data.Products = []Entry{
		{Key: "Silver Bracelet", HSCode: "71179000", Category: "7117"},
		{Key: "Cotton Polo Shirt", HSCode: "62053000", Origin: "US", CNumber: "1234", Line: 7},
	}
	return data
}

func TestNew(t *testing.T) {
	c := New(testData())

	t.Run("entries keep insertion order and normalised keys", func(t *testing.T) {
		require.Equal(t, 2, c.Len())
		assert.Equal(t, "Silver Bracelet", c.Entry(0).Key)
		assert.Equal(t, "silver bracelet", c.Entry(0).NormKey())
		assert.Equal(t, "cotton polo shirt", c.Entry(1).NormKey())
	})

	t.Run("entries without key or code are dropped", func(t *testing.T) {
		data := Data{Products: []Entry{{Key: "", HSCode: "1"}, {Key: "x", HSCode: ""}, {Key: "ok", HSCode: "123456"}}}
		assert.Equal(t, 1, New(data).Len())
	})

	t.Run("HS codes come from products and keywords", func(t *testing.T) {
		assert.True(t, c.HasHSCode("71179000"))
		assert.True(t, c.HasHSCode("96159000"))
		assert.False(t, c.HasHSCode("99999999"))
	})

	t.Run("code lists are case insensitive", func(t *testing.T) {
		assert.True(t, c.HasUnit("nmb"))
		assert.True(t, c.HasPackageType("PE"))
		assert.True(t, c.HasCurrency("XCD"))
		assert.True(t, c.HasOffice("LCHB"))
		assert.True(t, c.HasTransportMode("VC"))
		assert.False(t, c.HasUnit("XXX"))
	})
}

func TestCatalog_Country(t *testing.T) {
	c := New(testData())

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"US", "US", true},
		{"usa", "US", true},
		{"Miami, USA", "US", true},
		{"United Kingdom", "GB", true},
		{"St. Lucia", "LC", true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := c.Country(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalog_OfficeAndCarrier(t *testing.T) {
	c := New(testData())

	office, ok := c.Office("Departing UVF")
	assert.True(t, ok)
	assert.Equal(t, "LCHB", office)

	office, ok = c.Office("lcvfp")
	assert.True(t, ok)
	assert.Equal(t, "LCVFP", office)

	mode, ok := c.Carrier("Royal Caribbean - Allure")
	assert.True(t, ok)
	assert.Equal(t, "VC", mode, "longest alias wins over 'Caribbean'")

	mode, ok = c.Carrier("Caribbean Airlines BW 123")
	assert.True(t, ok)
	assert.Equal(t, "BW", mode)
}

func TestCatalog_Keyword(t *testing.T) {
	c := New(testData())

	hs, kw, ok := c.Keyword("Floral Cosmetic Bag")
	require.True(t, ok)
	assert.Equal(t, "42023210", hs)
	assert.Equal(t, "cosmetic bag", kw)

	hs, _, ok = c.Keyword("Beach bag large")
	require.True(t, ok)
	assert.Equal(t, "42022900", hs)

	_, _, ok = c.Keyword("Bracelets")
	assert.False(t, ok, "keywords match whole tokens only")
}

func TestCatalog_DocumentOffice(t *testing.T) {
	c := New(testData())

	office, ok := c.DocumentOffice("62053000")
	assert.True(t, ok)
	assert.Equal(t, "LCVGC", office)

	_, ok = c.DocumentOffice("9")
	assert.False(t, ok)
}

func TestCatalog_Version(t *testing.T) {
	a := New(testData())
	b := New(testData())
	assert.Equal(t, a.Version(), b.Version())

	changed := testData()
	changed.Products[0].HSCode = "71171900"
	assert.NotEqual(t, a.Version(), New(changed).Version())
}

func TestNew_DoesNotRetainInput(t *testing.T) {
	data := testData()
	c := New(data)
	data.Products[0].HSCode = "00000000"
	data.DocumentOffices["62"] = "XXXX"

	assert.Equal(t, "71179000", c.Entry(0).HSCode)
	office, _ := c.DocumentOffice("62000000")
	assert.Equal(t, "LCVGC", office)
}

func TestMerge(t *testing.T) {
	base := Builtin()
	overlay := Data{
		Products:  []Entry{{Key: "Straw Hat", HSCode: "65040000"}},
		Countries: map[string]string{"Jamaica": "JM", "USA": "US"},
		Units:     []string{"NMB", "GRM"},
	}
	merged := Merge(base, overlay)

	assert.Len(t, merged.Products, 1)
	assert.Equal(t, "JM", merged.Countries["Jamaica"])
	assert.Contains(t, merged.Units, "GRM")
	assert.Equal(t, len(base.Keywords), len(merged.Keywords))

	count := 0
	for _, u := range merged.Units {
		if u == "NMB" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
