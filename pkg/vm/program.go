package vm

// Segment is a contiguous region of memory loaded from an image.
type Segment struct {
	Offset Word // first word
	Size   Word // number of words
}

// Contains reports whether addr lies inside the segment.
func (s Segment) Contains(addr Word) bool {
	return addr >= s.Offset && addr-s.Offset < s.Size
}

// Symbol names a memory offset.
type Symbol struct {
	Name   string
	Offset Word
}

// SymbolTable is an ordered list of symbols. Duplicate names are kept.
type SymbolTable struct {
	entries []Symbol
}

// Add appends a symbol.
func (t *SymbolTable) Add(name string, off Word) {
	t.entries = append(t.entries, Symbol{Name: name, Offset: off})
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	return len(t.entries)
}

// All returns the symbols in the order they were added.
func (t *SymbolTable) All() []Symbol {
	return append([]Symbol(nil), t.entries...)
}

// Lookup returns the offset of the first symbol called name.
func (t *SymbolTable) Lookup(name string) (Word, bool) {
	for _, s := range t.entries {
		if s.Name == name {
			return s.Offset, true
		}
	}
	return 0, false
}

// Program is a loaded image: memory holding the code and data segments,
// plus the symbol table.
type Program struct {
	Memory  *Memory
	Code    Segment
	Data    Segment
	Symbols SymbolTable
}

// NewProgram returns a program with empty memory.
func NewProgram() *Program {
	return &Program{Memory: NewMemory()}
}

// DataSymbols returns the symbols whose offset lies in the data segment.
func (p *Program) DataSymbols() []Symbol {
	var syms []Symbol
	for _, s := range p.Symbols.entries {
		if p.Data.Contains(s.Offset) {
			syms = append(syms, s)
		}
	}
	return syms
}
