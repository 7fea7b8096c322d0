package encoding

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{-0.5, 0, 0.25},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, 3, vectors))

	hdr, got, err := ReadIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, IndexHeader{Dim: 3, Count: 2}, hdr)
	assert.Equal(t, vectors, got)
}

func TestWriteIndexRejectsWrongDimension(t *testing.T) {
	var buf bytes.Buffer
	err := WriteIndex(&buf, 3, [][]float32{{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestReadIndexErrors(t *testing.T) {
	_, _, err := ReadIndex(bytes.NewReader([]byte("NOTMAGIC________")))
	assert.ErrorIs(t, err, ErrBadMagic)

	var buf bytes.Buffer
	require.NoError(t, WriteIndex(&buf, 4, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}))
	short := buf.Bytes()[:buf.Len()-3]
	_, _, err = ReadIndex(bytes.NewReader(short))
	assert.ErrorIs(t, err, ErrTruncated)

	huge := append([]byte(IndexMagic), 0xff, 0xff, 0xff, 0x7f, 1, 0, 0, 0)
	_, _, err = ReadIndex(bytes.NewReader(huge))
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestTextsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeTexts(&buf, []string{"alpha", "[PAST MEMORY - USER]: hi"}))

	texts, err := DecodeTexts(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "[PAST MEMORY - USER]: hi"}, texts)

	buf.Reset()
	require.NoError(t, EncodeTexts(&buf, nil))
	texts, err = DecodeTexts(&buf)
	require.NoError(t, err)
	assert.Empty(t, texts)
}

func TestValidateVector(t *testing.T) {
	assert.NoError(t, ValidateVector([]float32{0.1, 0.2}))
	assert.ErrorIs(t, ValidateVector(nil), ErrInvalidVector)
	assert.ErrorIs(t, ValidateVector([]float32{float32(math.NaN())}), ErrInvalidVector)
	assert.ErrorIs(t, ValidateVector([]float32{float32(math.Inf(1))}), ErrInvalidVector)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.json")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}
