package gige

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensorJSON = `{
  "values": {
    "DeviceVendorName": "Micro-Epsilon",
    "DeviceModelName": "scanCONTROL 2950-50",
    "AcquisitionFrameRate": 300.0,
    "ContainerResolution": 1,
    "FlipPos": true
  },
  "enums": {
    "ContainerResolution": [
      {"value": 0, "display": "1280 points"},
      {"value": 1, "display": "640 points"}
    ]
  }
}`

func writeFeatures(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensor.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFeatureMap(t *testing.T) {
	m, err := LoadFeatureMap(writeFeatures(t, sensorJSON))
	require.NoError(t, err)

	vendor, err := m.String("DeviceVendorName")
	require.NoError(t, err)
	assert.Equal(t, "Micro-Epsilon", vendor)

	rate, err := m.Float("AcquisitionFrameRate")
	require.NoError(t, err)
	assert.Equal(t, 300.0, rate)

	// JSON numbers decode as float64 but read back as integers.
	res, err := m.Int("ContainerResolution")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res)

	flip, err := m.Bool("FlipPos")
	require.NoError(t, err)
	assert.True(t, flip)

	entries, err := m.EnumEntries("ContainerResolution")
	require.NoError(t, err)
	assert.Equal(t, []EnumEntry{{0, "1280 points"}, {1, "640 points"}}, entries)
	assert.Empty(t, m.Writes())
}

func TestLoadFeatureMapErrors(t *testing.T) {
	_, err := LoadFeatureMap(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	_, err = LoadFeatureMap(writeFeatures(t, "{not json"))
	assert.Error(t, err)
}

func TestFeatureMapErrors(t *testing.T) {
	m := NewFeatureMap()
	m.Define("Width", 1.5)
	m.Define("Name", "x")

	_, err := m.Int("Height")
	assert.ErrorIs(t, err, ErrUnknownFeature)
	_, err = m.Int("Width")
	assert.ErrorIs(t, err, ErrFeatureType)
	_, err = m.Bool("Name")
	assert.ErrorIs(t, err, ErrFeatureType)
	_, err = m.Float("Name")
	assert.ErrorIs(t, err, ErrFeatureType)
	_, err = m.String("Width")
	assert.ErrorIs(t, err, ErrFeatureType)
	_, err = m.EnumEntries("Name")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestFeatureMapRecordsWrites(t *testing.T) {
	m := NewFeatureMap()
	m.Define("Width", int64(10))
	require.NoError(t, m.SetInt("Width", 1280))
	require.NoError(t, m.SetBool("ContainerZ", true))
	require.NoError(t, m.SetString("PixelFormat", "Mono16"))
	require.NoError(t, m.SetFloat("ExposureTime", 1000))

	assert.Equal(t, []string{"Width", "ContainerZ", "PixelFormat", "ExposureTime"}, m.Writes())
	assert.Equal(t, []string{"ContainerZ", "ExposureTime", "PixelFormat", "Width"}, m.Names())
	w, err := m.Int("Width")
	require.NoError(t, err)
	assert.Equal(t, int64(1280), w)
}

func TestFeatureMapJSONRoundTrip(t *testing.T) {
	m, err := LoadFeatureMap(writeFeatures(t, sensorJSON))
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	again, err := LoadFeatureMap(writeFeatures(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, m.Names(), again.Names())
	model, err := again.String("DeviceModelName")
	require.NoError(t, err)
	assert.Equal(t, "scanCONTROL 2950-50", model)
}
