package lbl

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatText, FormatFromPath("model.txt"))
	assert.Equal(t, FormatText, FormatFromPath("model"))
	assert.Equal(t, FormatBinary, FormatFromPath("dir/model.vbin"))
	assert.Equal(t, FormatGzipText, FormatFromPath("model.txt.gz"))
	assert.Equal(t, FormatGzipBinary, FormatFromPath("model.VBGZ"))

	assert.True(t, FormatGzipBinary.Binary())
	assert.True(t, FormatGzipBinary.Compressed())
	assert.False(t, FormatBinary.Compressed())
	assert.False(t, FormatGzipText.Binary())
	assert.Equal(t, "gzip+text", FormatGzipText.String())
}

func TestRecordsRoundTrip(t *testing.T) {
	floats := []float64{0, -1.5, 1.0 / 3.0, 1e-300, math.MaxFloat64, math.Inf(-1)}
	strs := []string{"diag_log", "", "two words", "line\nbreak"}

	for _, format := range []Format{FormatText, FormatBinary, FormatGzipText, FormatGzipBinary} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			enc := openWriter(&buf, format)
			require.NoError(t, enc.WriteInt(-42))
			for _, v := range floats {
				require.NoError(t, enc.WriteFloat(v))
			}
			require.NoError(t, enc.EndRecord())
			for _, s := range strs {
				require.NoError(t, enc.WriteString(s))
			}
			require.NoError(t, enc.WriteInt(7))
			require.NoError(t, enc.EndRecord())
			require.NoError(t, enc.Close())

			dec, err := openReader(&buf, format)
			require.NoError(t, err)
			defer func() { _ = dec.Close() }()

			i, err := dec.ReadInt()
			require.NoError(t, err)
			assert.Equal(t, -42, i)
			for _, want := range floats {
				got, err := dec.ReadFloat()
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			for _, want := range strs {
				got, err := dec.ReadString()
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			i, err = dec.ReadInt()
			require.NoError(t, err)
			assert.Equal(t, 7, i)

			_, err = dec.ReadInt()
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestTextReaderRejectsGarbage(t *testing.T) {
	dec, err := openReader(bytes.NewBufferString("12 abc"), FormatText)
	require.NoError(t, err)

	i, err := dec.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, 12, i)
	_, err = dec.ReadFloat()
	assert.Error(t, err)
}

func TestGzipReaderRejectsPlainStream(t *testing.T) {
	_, err := openReader(bytes.NewBufferString("1 2 3"), FormatGzipText)
	assert.Error(t, err)
}

func TestReadersRejectOversizedStrings(t *testing.T) {
	for _, format := range []Format{FormatText, FormatBinary} {
		var buf bytes.Buffer
		enc := openWriter(&buf, format)
		require.NoError(t, enc.WriteInt(1<<62))
		require.NoError(t, enc.WriteString("tail"))
		require.NoError(t, enc.Close())

		dec, err := openReader(&buf, format)
		require.NoError(t, err)
		_, err = dec.ReadString()
		assert.Error(t, err, "format %d", format)
	}
}
