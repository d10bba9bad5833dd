package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"1b", 1},
		{"1k", 1 * KB},
		{"1kb", 1 * KB},
		{"1Ki", 1 * KiB},
		{"256Mi", 256 * MiB},
		{"256MB", 256 * MB},
		{"1G", 1 * GB},
		{"2Gi", 2 * GiB},
		{"1.5Gi", ByteSize(1.5 * float64(GiB))},
		{"  10 Mi  ", 10 * MiB},
		{"512KIB", 512 * KiB},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "1TB x", "-5Mi", "10Xi"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("64Mi")))
	assert.Equal(t, 64*MiB, b)

	assert.Error(t, b.UnmarshalText([]byte("bogus")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "2Gi", (2 * GiB).String())
	assert.Equal(t, "256Mi", (256 * MiB).String())
	assert.Equal(t, "4Ki", (4 * KiB).String())
	assert.Equal(t, "1000", ByteSize(1000).String())
	assert.Equal(t, "0", ByteSize(0).String())
}

func TestBytes(t *testing.T) {
	assert.Equal(t, int64(1048576), (1 * MiB).Bytes())
}
