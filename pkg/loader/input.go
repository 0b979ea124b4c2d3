package loader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/akhildatla/ttk91/pkg/vm"
)

// ReadInts reads every integer the machine would receive from path: one
// column of a CSV, JSON or Parquet file, or every whitespace separated
// value of a text file.
func ReadInts(ctx context.Context, path, column string) ([]int64, error) {
	if FormatOf(path) == FormatText {
		return readText(path)
	}

	df, err := LoadFrame(ctx, path)
	if err != nil {
		return nil, err
	}
	return Ints(df, column)
}

// OpenInput returns an input device source that yields the values of
// ReadInts in order.
func OpenInput(ctx context.Context, path, column string) (*vm.Feed, error) {
	vals, err := ReadInts(ctx, path, column)
	if err != nil {
		return nil, err
	}
	return vm.NewFeed(vals...), nil
}

func readText(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(string(data))
	vals := make([]int64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s value %d: %w: %q", path, i+1, ErrNotInteger, f)
		}
		vals[i] = n
	}
	return vals, nil
}
