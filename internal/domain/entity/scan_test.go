package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScanInput_Minimal(t *testing.T) {
	scan, err := ParseScanInput([]byte(`{
		"vin": "1HGCM82633A004352",
		"milOn": true,
		"dtcCount": 1,
		"storedDtcCodes": ["P0420"],
		"pendingDtcCodes": [],
		"permanentDtcCodes": []
	}`))
	require.NoError(t, err)
	require.Equal(t, "1HGCM82633A004352", scan.VIN)
	require.True(t, scan.MilOn)
	require.Nil(t, scan.Year)
	require.Nil(t, scan.Mileage)
	require.Equal(t, []string{"P0420"}, scan.StoredDTCCodes)
}

func TestParseScanInput_KeepsOrderAndDuplicates(t *testing.T) {
	scan, err := ParseScanInput([]byte(`{
		"vin": "1HGCM82633A004352",
		"dtcCount": 3,
		"storedDtcCodes": ["P0301", "P0171", "P0301"],
		"pendingDtcCodes": ["P0420"]
	}`))
	require.NoError(t, err)
	require.Equal(t, []string{"P0301", "P0171", "P0301"}, scan.StoredDTCCodes)
	require.Equal(t, []string{"P0301", "P0171", "P0301", "P0420"}, scan.AllCodes())
}

func TestParseScanInput_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"vin":"1HGCM82633A004352","dtcCount":0,"color":"red"}`,
		"short vin":      `{"vin":"ABC","dtcCount":0}`,
		"vin with O":     `{"vin":"1HGCM82633O004352","dtcCount":0}`,
		"negative count": `{"vin":"1HGCM82633A004352","dtcCount":-1}`,
		"negative miles": `{"vin":"1HGCM82633A004352","dtcCount":0,"mileage":-5}`,
		"bad code":       `{"vin":"1HGCM82633A004352","dtcCount":1,"storedDtcCodes":["P04 20"]}`,
		"trailing data":  `{"vin":"1HGCM82633A004352","dtcCount":0} {}`,
		"not json":       `vin=1HGCM82633A004352`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScanInput([]byte(body))
			require.ErrorIs(t, err, ErrInvalidScan)
		})
	}
}

func TestScanInput_ValidateStableMessage(t *testing.T) {
	bad := -1
	scan := &ScanInput{VIN: "x", DTCCount: -1, Mileage: &bad, WarmupsSinceCleared: &bad}

	first := scan.Validate()
	require.Error(t, first)
	for i := 0; i < 10; i++ {
		require.EqualError(t, scan.Validate(), first.Error())
	}
}
