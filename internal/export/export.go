// Package export writes correspondence results to disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"synthcorr/internal/augment"
	"synthcorr/internal/correspond"
	"synthcorr/internal/pipeline"

	"github.com/fxamacker/cbor/v2"
	"github.com/jszwec/csvutil"
)

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".cbor":
		return FormatCBOR, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("cannot infer output format from %q (want .json, .cbor or .csv)", path)
}

// Record is the serialised form of a pipeline run.
type Record struct {
	Sources   []string          `json:"sources,omitempty" cbor:"sources,omitempty"`
	Height    int               `json:"height" cbor:"height"`
	Width     int               `json:"width" cbor:"width"`
	K         int               `json:"k" cbor:"k"`
	Transform augment.Transform `json:"transform" cbor:"transform"`
	Sets      []correspond.Set  `json:"sets" cbor:"sets"`
}

// NewRecord captures res for serialisation. sources names the input images.
func NewRecord(res *pipeline.Result, k int, sources []string) (Record, error) {
	s, err := res.Reference.Shape()
	if err != nil {
		return Record{}, err
	}
	return Record{
		Sources:   sources,
		Height:    s.H,
		Width:     s.W,
		K:         k,
		Transform: res.Transform,
		Sets:      res.Sets,
	}, nil
}

// Row is one correspondence pair in CSV output.
type Row struct {
	Image  int    `csv:"image"`
	Source string `csv:"source,omitempty"`
	Index  int    `csv:"index"`
	SrcRow int    `csv:"src_row"`
	SrcCol int    `csv:"src_col"`
	DstRow int    `csv:"dst_row"`
	DstCol int    `csv:"dst_col"`
}

// Rows flattens the record into CSV rows.
func (r Record) Rows() []Row {
	rows := []Row{}
	for i, s := range r.Sets {
		name := ""
		if i < len(r.Sources) {
			name = r.Sources[i]
		}
		for j := range s.Source {
			rows = append(rows, Row{
				Image:  i,
				Source: name,
				Index:  j,
				SrcRow: s.Source[j].Row,
				SrcCol: s.Source[j].Col,
				DstRow: s.Destination[j].Row,
				DstCol: s.Destination[j].Col,
			})
		}
	}
	return rows
}

// Marshal encodes the record in format f.
func Marshal(r Record, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatCBOR:
		return cbor.Marshal(r)
	case FormatCSV:
		return csvutil.Marshal(r.Rows())
	}
	return nil, fmt.Errorf("unknown format %q", f)
}

// WriteFile encodes the record according to the extension of path.
func WriteFile(path string, r Record) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(r, f)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile decodes a JSON or CBOR record.
func ReadFile(path string) (Record, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Record{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var r Record
	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &r)
	default:
		return Record{}, fmt.Errorf("reading %s records is not supported", f)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return r, nil
}
