package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// seriesByName returns the named series, or the first one if name is empty.
func seriesByName(df *dataframe.DataFrame, name string) (dataframe.Series, error) {
	if len(df.Series) == 0 {
		return nil, ErrEmptyFile
	}
	if name == "" {
		return df.Series[0], nil
	}
	idx, err := df.NameToColumn(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoColumn, name)
	}
	return df.Series[idx], nil
}

// int64Value extracts an integer from a Series at index i. Floats must be
// whole and strings must hold a decimal integer.
func int64Value(s dataframe.Series, i int) (int64, error) {
	v := s.Value(i)
	switch val := v.(type) {
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int:
		return int64(val), nil
	case float64:
		return wholeFloat(val)
	case float32:
		return wholeFloat(float64(val))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotInteger, val)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%w: missing value", ErrNotInteger)
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNotInteger, val, val)
	}
}

func wholeFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v", ErrNotInteger, f)
	}
	return int64(f), nil
}

// Ints returns every value of the named column as an integer. An empty
// name selects the first column.
func Ints(df *dataframe.DataFrame, column string) ([]int64, error) {
	s, err := seriesByName(df, column)
	if err != nil {
		return nil, err
	}

	n := s.NRows()
	vals := make([]int64, n)
	for i := 0; i < n; i++ {
		if vals[i], err = int64Value(s, i); err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", s.Name(), i+1, err)
		}
	}
	return vals, nil
}
