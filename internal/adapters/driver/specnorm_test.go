package driver

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestParseMemoryString(t *testing.T) {
	// Kubernetes binary units
	n, err := ParseMemoryString("512Mi")
	require.NoError(t, err)
	assert.Equal(t, int64(536870912), n)

	n, err = ParseMemoryString("1Gi")
	require.NoError(t, err)
	assert.Equal(t, int64(1073741824), n)

	// Docker decimal-suffix units, still powers of 1024
	n, err = ParseMemoryString("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(536870912), n)

	n, err = ParseMemoryString("1g")
	require.NoError(t, err)
	assert.Equal(t, int64(1073741824), n)

	n, err = ParseMemoryString("1024kb")
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), n)

	// Bare byte count
	n, err = ParseMemoryString("1024")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), n)
}

func TestParseMemoryString_Invalid(t *testing.T) {
	_, err := ParseMemoryString("")
	assert.Error(t, err)

	_, err = ParseMemoryString("abc")
	assert.Error(t, err)
}

func TestEnforceMinimumMemory(t *testing.T) {
	// Below the floor rounds up
	n, err := EnforceMinimumMemory("64Mi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(MinMemoryBytes), n)

	// "1m" is the canonical tiny request
	n, err = EnforceMinimumMemory("1m", testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(MinMemoryBytes), n)

	// Above the floor passes through
	n, err = EnforceMinimumMemory("512Mi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(536870912), n)
}

func TestEnforceMinimumDisk(t *testing.T) {
	n, err := EnforceMinimumDisk("50Mi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(MinDiskBytes), n)

	n, err = EnforceMinimumDisk("1Gi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(1073741824), n)
}

func TestNormalizeMemoryForKubernetes_UnitTranslation(t *testing.T) {
	cases := map[string]string{
		"256000KB": "256000Ki",
		"256000kb": "256000Ki",
		"256MB":    "256Mi",
		"256mb":    "256Mi",
		"2GB":      "2Gi",
		"2gb":      "2Gi",
		"256000K":  "256000Ki",
		"256000k":  "256000Ki",
		"256M":     "256Mi",
		"256m":     "256Mi",
		"2G":       "2Gi",
		"2g":       "2Gi",
	}
	for in, want := range cases {
		got, err := NormalizeMemoryForKubernetes(in, testLogger())
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeMemoryForKubernetes_AlreadyBinary(t *testing.T) {
	got, err := NormalizeMemoryForKubernetes("256Mi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "256Mi", got)

	got, err = NormalizeMemoryForKubernetes("1Gi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "1Gi", got)
}

func TestNormalizeMemoryForKubernetes_RawBytes(t *testing.T) {
	got, err := NormalizeMemoryForKubernetes("134217728", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "134217728", got)
}

func TestNormalizeMemoryForKubernetes_FloorEmitsBytes(t *testing.T) {
	// Rounded-up values come back as raw byte counts, never a suffixed form
	for _, in := range []string{"64Mi", "64m", "1k", "512Ki"} {
		got, err := NormalizeMemoryForKubernetes(in, testLogger())
		require.NoError(t, err, in)
		assert.Equal(t, "134217728", got, in)
	}
}

func TestNormalizeMemoryForKubernetes_Empty(t *testing.T) {
	got, err := NormalizeMemoryForKubernetes("", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNormalizeDiskForKubernetes(t *testing.T) {
	got, err := NormalizeDiskForKubernetes("1g", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "1Gi", got)

	got, err = NormalizeDiskForKubernetes("512m", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "512Mi", got)

	// Below the disk floor emits raw bytes
	got, err = NormalizeDiskForKubernetes("50Mi", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "104857600", got)
}
