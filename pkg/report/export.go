package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/xitongsys/parquet-go-source/local"
)

// Format is an output format for frames.
type Format string

const (
	FormatText    Format = "text"
	FormatTable   Format = "table"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// Formats lists the accepted formats.
var Formats = []Format{FormatText, FormatTable, FormatCSV, FormatJSON, FormatParquet}

var (
	ErrUnknownFormat = errors.New("unknown report format")
	ErrNeedsFile     = errors.New("format can only be written to a file")
)

// ParseFormat returns the format called s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Export writes df to w in format f. FormatText is not a frame format and
// Parquet needs a file; use ExportFile for it.
func Export(ctx context.Context, w io.Writer, df *dataframe.DataFrame, f Format) error {
	switch f {
	case FormatTable:
		_, err := io.WriteString(w, df.Table())
		return err
	case FormatCSV:
		return exports.ExportToCSV(ctx, w, df)
	case FormatJSON:
		return exports.ExportToJSON(ctx, w, df)
	case FormatParquet:
		return fmt.Errorf("%w: %s", ErrNeedsFile, f)
	case FormatText:
		return fmt.Errorf("%w: text is not a frame format", ErrUnknownFormat)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// ExportFile writes df to the file at path in format f.
func ExportFile(ctx context.Context, path string, df *dataframe.DataFrame, f Format) error {
	if f == FormatParquet {
		fw, err := local.NewLocalFileWriter(path)
		if err != nil {
			return err
		}
		if err := exports.ExportToParquet(ctx, fw, df); err != nil {
			fw.Close()
			return fmt.Errorf("exporting parquet: %w", err)
		}
		return fw.Close()
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Export(ctx, file, df, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteSymbols renders rows in format f, to the file at path if path is
// set and to w otherwise.
func WriteSymbols(ctx context.Context, w io.Writer, path string, rows []SymbolRow, f Format) error {
	if f != FormatText {
		df := SymbolFrame(rows)
		if path != "" {
			return ExportFile(ctx, path, df, f)
		}
		return Export(ctx, w, df, f)
	}

	if path == "" {
		return WriteText(w, rows)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteText(file, rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
