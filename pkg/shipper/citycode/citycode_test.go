package citycode_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper/citycode"
)

func TestDHL_Lookup(t *testing.T) {
	table, err := citycode.DHL()
	require.NoError(t, err)
	assert.Equal(t, 12, table.Countries())

	tests := []struct {
		country string
		cities  []string
		want    string
	}{
		{"SA", []string{"abu areish"}, "ABU ARISH"},
		{"SA", []string{"ABHA"}, "Abha"},
		{"SA", []string{"Jubail"}, "Jubail"},
		{"SA", []string{"al jubail industrial"}, "JUBAIL"},
		{"AE", []string{"Nowhere", "dubai marina"}, "DUBAI MARINA"},
	}

	for _, tt := range tests {
		t.Run(tt.country+"/"+tt.cities[0], func(t *testing.T) {
			got, err := table.Lookup(tt.country, tt.cities...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_AliasKeyBeatsCodeSpelling(t *testing.T) {
	raw := []byte("SA:\n  aliases:\n    Jubail: Jubail\n    Al jubail industrial: JUBAIL\n    Khobar: AL KHOBAR\n    Al khobar: KHOBAR\n")

	for i := 0; i < 50; i++ {
		table, err := citycode.Parse(raw)
		require.NoError(t, err)

		code, err := table.Lookup("SA", "JUBAIL")
		require.NoError(t, err)
		require.Equal(t, "Jubail", code, "run %d", i)

		code, err = table.Lookup("SA", "khobar")
		require.NoError(t, err)
		require.Equal(t, "AL KHOBAR", code, "run %d", i)

		code, err = table.Lookup("SA", "Al khobar")
		require.NoError(t, err)
		require.Equal(t, "KHOBAR", code, "run %d", i)
	}
}

func TestDHL_NotFound(t *testing.T) {
	table, err := citycode.DHL()
	require.NoError(t, err)

	_, err = table.Lookup("SA", "Atlantis")
	assert.ErrorIs(t, err, citycode.ErrNotFound)

	_, err = table.Lookup("FR", "Paris")
	assert.ErrorIs(t, err, citycode.ErrNotFound)
}

func TestLoad_WithCountryCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "naqel.yaml")
	content := "SA:\n  country_code: KSA\n  aliases:\n    Riyadh: RUH\n    Jeddah: JED\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := citycode.Load(path)
	require.NoError(t, err)

	code, err := table.Lookup("SA", "riyadh")
	require.NoError(t, err)
	assert.Equal(t, "RUH", code)
	assert.Equal(t, "KSA", table.CountryCode("SA"))
	assert.Equal(t, "AE", table.CountryCode("AE"))
}

func TestNilTable(t *testing.T) {
	var table *citycode.Table
	_, err := table.Lookup("SA", "Riyadh")
	assert.ErrorIs(t, err, citycode.ErrNotFound)
	assert.Equal(t, "SA", table.CountryCode("SA"))
}
