// Package report renders what a program left behind: the values of its
// data-segment symbols and the execution statistics of the run.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/ttk91/pkg/vm"
)

// SymbolRow is the value of one data symbol at halt.
type SymbolRow struct {
	Name   string
	Offset vm.Word
	Value  vm.Word
}

// Symbols reads the current value of every symbol that lies in the data
// segment, in symbol table order.
func Symbols(p *vm.Program) ([]SymbolRow, error) {
	syms := p.DataSymbols()
	rows := make([]SymbolRow, 0, len(syms))
	for _, s := range syms {
		v, err := p.Memory.Read(s.Offset)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", s.Name, err)
		}
		rows = append(rows, SymbolRow{Name: s.Name, Offset: s.Offset, Value: v})
	}
	return rows, nil
}

// WriteText writes one line per symbol:
//
//	NAME(0xOFF) == 0xVAL (decimal N)
func WriteText(w io.Writer, rows []SymbolRow) error {
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s(0x%x) == 0x%x (decimal %d)\n", r.Name, r.Offset, r.Value, int64(r.Value)); err != nil {
			return err
		}
	}
	return nil
}

// SymbolFrame returns the rows as a frame with columns symbol, offset,
// value and hex.
func SymbolFrame(rows []SymbolRow) *dataframe.DataFrame {
	names := make([]string, len(rows))
	offsets := make([]int64, len(rows))
	values := make([]int64, len(rows))
	hex := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
		offsets[i] = int64(r.Offset)
		values[i] = int64(r.Value)
		hex[i] = fmt.Sprintf("0x%x", r.Value)
	}

	return dataframe.NewDataFrame(
		newStringSeries("symbol", names),
		newInt64Series("offset", offsets),
		newInt64Series("value", values),
		newStringSeries("hex", hex),
	)
}

// OpCount is the number of times one mnemonic was executed.
type OpCount struct {
	Mnemonic string
	Count    int
}

// OpCounts returns the per-mnemonic counts, most frequent first.
func OpCounts(stats *vm.ExecutionStats) []OpCount {
	counts := make([]OpCount, 0, len(stats.OpCounts))
	for m, n := range stats.OpCounts {
		counts = append(counts, OpCount{Mnemonic: m, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Mnemonic < counts[j].Mnemonic
	})
	return counts
}

// StatsFrame returns the per-mnemonic counts as a frame with columns
// mnemonic and count.
func StatsFrame(stats *vm.ExecutionStats) *dataframe.DataFrame {
	counts := OpCounts(stats)
	names := make([]string, len(counts))
	n := make([]int64, len(counts))
	for i, c := range counts {
		names[i] = c.Mnemonic
		n[i] = int64(c.Count)
	}

	return dataframe.NewDataFrame(
		newStringSeries("mnemonic", names),
		newInt64Series("count", n),
	)
}

// WriteStats writes a short summary of the run followed by a table of the
// per-mnemonic counts.
func WriteStats(w io.Writer, stats *vm.ExecutionStats) error {
	_, err := fmt.Fprintf(w, "steps: %d\ntime: %v\n%s",
		stats.StepsExecuted, time.Duration(stats.ExecutionTimeNs), StatsFrame(stats).Table())
	return err
}

func newInt64Series(name string, data []int64) *dataframe.SeriesInt64 {
	vals := make([]interface{}, len(data))
	for i, v := range data {
		vals[i] = v
	}
	return dataframe.NewSeriesInt64(name, nil, vals...)
}

func newStringSeries(name string, data []string) *dataframe.SeriesString {
	vals := make([]interface{}, len(data))
	for i, v := range data {
		vals[i] = v
	}
	return dataframe.NewSeriesString(name, nil, vals...)
}
