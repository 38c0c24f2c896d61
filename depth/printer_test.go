package depth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterWritesTabSeparatedRows(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.SetChromosome("chr1")
	require.NoError(t, p.Write(100, 5))
	require.NoError(t, p.Write(101, 12))
	require.NoError(t, p.Flush())

	assert.Equal(t, "chr1\t100\t5\nchr1\t101\t12\n", buf.String())
}

func TestPrinterHandlesZeroCoordAndDepth(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.SetChromosome("chrZ")
	require.NoError(t, p.Write(0, 0))
	require.NoError(t, p.Flush())
	assert.Equal(t, "chrZ\t0\t0\n", buf.String())
}

func TestPrinterSwitchesChromosome(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.SetChromosome("chr1")
	require.NoError(t, p.Write(1, 1))
	p.SetChromosome("chr2")
	require.NoError(t, p.Write(2, 2))
	require.NoError(t, p.Flush())
	assert.Equal(t, "chr1\t1\t1\nchr2\t2\t2\n", buf.String())
}
