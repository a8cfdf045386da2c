package pointcloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePCD(t *testing.T) {
	c := NewContainer()
	_, err := c.Put(1, []float32{1, 2}, []float32{0, 0.05}, []float32{60, 61.5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePCD(&buf, c))

	out := buf.String()
	assert.Contains(t, out, "FIELDS x y z\n")
	assert.Contains(t, out, "POINTS 2\n")
	assert.True(t, strings.HasSuffix(out, "DATA ascii\n1.0000 0.0000 60.0000\n2.0000 0.0500 61.5000\n"), out)
}

func TestWriteASC(t *testing.T) {
	c := NewContainer()
	assert.Error(t, WriteASC(&bytes.Buffer{}, c))

	_, err := c.Put(7, []float32{1}, []float32{2}, []float32{3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteASC(&buf, c))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1.000000 2.000000 3.000000 7", lines[2])
}
