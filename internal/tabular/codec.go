// Package tabular defines the columnar row types written between stages and
// the parquet and CSV codecs for them.
package tabular

import (
	"bytes"
	"fmt"

	"github.com/jszwec/csvutil"
	"github.com/parquet-go/parquet-go"
)

// Content types used when storing encoded tables.
const (
	ParquetContentType = "application/vnd.apache.parquet"
	CSVContentType     = "text/csv; charset=utf-8"
)

// EncodeParquet writes rows as a single parquet file.
func EncodeParquet[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, fmt.Errorf("encode parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads every row of a parquet file.
func DecodeParquet[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	return rows, nil
}

// EncodeCSV writes rows with a header line derived from csv tags.
func EncodeCSV[T any](rows []T) ([]byte, error) {
	out, err := csvutil.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return out, nil
}

// DecodeCSV reads rows written by EncodeCSV.
func DecodeCSV[T any](data []byte) ([]T, error) {
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	return rows, nil
}
