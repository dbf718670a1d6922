package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"synthcorr/internal/augment"
	"synthcorr/internal/correspond"
	"synthcorr/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		Sources:   []string{"a.png", "b.png"},
		Height:    8,
		Width:     8,
		K:         2,
		Transform: augment.Translate(2, 0),
		Sets: []correspond.Set{
			{
				Source:      []geometry.Pixel{{Row: 0, Col: 1}, {Row: 3, Col: 4}},
				Destination: []geometry.Pixel{{Row: 2, Col: 1}, {Row: 5, Col: 4}},
				Candidates:  64,
				Matches:     48,
			},
			{Reason: correspond.ReasonNoMatches, Candidates: 64},
		},
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.json", FormatJSON},
		{"dir/out.CBOR", FormatCBOR},
		{"pairs.csv", FormatCSV},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got)
	}

	_, err := FormatFromPath("out.txt")
	assert.Error(t, err)
	_, err = FormatFromPath("out")
	assert.Error(t, err)
}

func TestJSONAndCBORRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()

	for _, name := range []string{"out.json", "out.cbor"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, rec))

		got, err := ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, rec.Sources, got.Sources, name)
		assert.Equal(t, rec.K, got.K, name)
		assert.Equal(t, rec.Transform.Kind, got.Transform.Kind, name)
		assert.Equal(t, rec.Transform.Forward, got.Transform.Forward, name)
		assert.Equal(t, rec.Transform.Shift, got.Transform.Shift, name)
		require.Len(t, got.Sets, 2, name)
		assert.Equal(t, rec.Sets[0].Source, got.Sets[0].Source, name)
		assert.Equal(t, rec.Sets[0].Destination, got.Sets[0].Destination, name)
		assert.Equal(t, correspond.ReasonNoMatches, got.Sets[1].Reason, name)
		assert.True(t, got.Sets[1].Empty(), name)
	}
}

func TestJSONIsReadable(t *testing.T) {
	data, err := Marshal(sampleRecord(), FormatJSON)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"kind": "fixed"`)
	assert.Contains(t, s, `"reason": "no_matches"`)
	assert.Contains(t, s, `"row": 3`)
}

func TestCSVRows(t *testing.T) {
	rec := sampleRecord()
	rows := rec.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Image: 0, Source: "a.png", Index: 1, SrcRow: 3, SrcCol: 4, DstRow: 5, DstCol: 4}, rows[1])

	path := filepath.Join(t.TempDir(), "pairs.csv")
	require.NoError(t, WriteFile(path, rec))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "image,source,index,src_row,src_col,dst_row,dst_col", lines[0])
	assert.Equal(t, "0,a.png,0,0,1,2,1", lines[1])

	_, err = ReadFile(path)
	assert.Error(t, err)
}
