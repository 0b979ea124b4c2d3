package vm

import (
	"fmt"

	"github.com/akhildatla/ttk91/pkg/word"
)

// Word is the unit of memory and register storage.
type Word = uint64

const (
	// DefaultMemoryLimit caps the simulated memory at 16M words (128 MiB of
	// host memory). Images that declare larger segments fail to load with
	// ErrOutOfMemory instead of exhausting the host.
	DefaultMemoryLimit Word = 1 << 24

	// MaxMemoryWords bounds growth when no limit is set: the 32-bit address
	// space of the machine (32 GiB of host memory).
	MaxMemoryWords Word = 1 << 32
)

// Memory is the simulated word-addressable memory. It only grows, and only
// at the end.
type Memory struct {
	words []Word
	limit Word
}

// NewMemory returns an empty memory with DefaultMemoryLimit.
func NewMemory() *Memory {
	return &Memory{limit: DefaultMemoryLimit}
}

// NewMemoryWords returns a memory holding a copy of words.
func NewMemoryWords(words []Word) *Memory {
	m := NewMemory()
	m.words = append([]Word(nil), words...)
	return m
}

// SetLimit sets the largest size in words the memory may grow to.
// Zero removes the limit; growth is then bounded by MaxMemoryWords.
func (m *Memory) SetLimit(words Word) {
	m.limit = words
}

// Len returns the current size in words.
func (m *Memory) Len() Word {
	return Word(len(m.words))
}

// Grow appends n zeroed words.
func (m *Memory) Grow(n Word) error {
	size, err := word.Add(m.Len(), n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	limit := m.limit
	if limit == 0 || limit > MaxMemoryWords {
		limit = MaxMemoryWords
	}
	if size > limit {
		return fmt.Errorf("%w: %d words requested, limit is %d", ErrOutOfMemory, size, limit)
	}
	m.words = append(m.words, make([]Word, n)...)
	return nil
}

func (m *Memory) check(addr Word) error {
	if addr < m.Len() {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
}

// Read returns the word at addr.
func (m *Memory) Read(addr Word) (Word, error) {
	if err := m.check(addr); err != nil {
		return 0, err
	}
	return m.words[addr], nil
}

// Write stores val at addr. Memory never grows implicitly.
func (m *Memory) Write(addr, val Word) error {
	if err := m.check(addr); err != nil {
		return err
	}
	m.words[addr] = val
	return nil
}

// Slice returns a copy of count words starting at off.
func (m *Memory) Slice(off, count Word) ([]Word, error) {
	end, err := word.Add(off, count)
	if err != nil || end > m.Len() {
		return nil, fmt.Errorf("%w: range %d+%d", ErrInvalidAddress, off, count)
	}
	return append([]Word(nil), m.words[off:end]...), nil
}

// Words returns a copy of the entire memory.
func (m *Memory) Words() []Word {
	return append([]Word(nil), m.words...)
}
