// Package loader reads program input from data files. CSV, JSON and Parquet
// files are loaded as data frames and one integer column is fed to the
// machine; any other file is read as whitespace separated integers.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"
)

// Error definitions
var (
	ErrEmptyFile   = errors.New("empty input file")
	ErrNoColumn    = errors.New("no such column")
	ErrNotInteger  = errors.New("value is not an integer")
	ErrUnsupported = errors.New("file format has no columns")
)

// Format identifies an input file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
	FormatText    Format = "text"
)

// FormatOf picks the format from the file extension. Unknown extensions are
// read as text.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json", ".jsonl":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	default:
		return FormatText
	}
}

// LoadFrame reads a CSV, JSON or Parquet file into a DataFrame.
// Column types are inferred, and empty values become nil.
func LoadFrame(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	var (
		df  *dataframe.DataFrame
		err error
	)
	switch FormatOf(path) {
	case FormatCSV:
		df, err = loadCSV(ctx, path)
	case FormatJSON:
		df, err = loadJSON(ctx, path)
	case FormatParquet:
		df, err = loadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return df, nil
}

// loadCSV treats the first row as the header.
func loadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
}

// loadJSON expects an array of objects: [{"col1": val1, "col2": val2}, ...]
func loadJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return imports.LoadFromJSON(ctx, bytes.NewReader(data))
}

func loadParquet(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	return imports.LoadFromParquet(ctx, fr)
}
