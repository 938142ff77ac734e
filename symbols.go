package hybridhook

import (
	"github.com/essentialia/hybridhook/internal/objsym"
)

// Symbols reads the symbol table of the ELF, Mach-O or PE object file at
// path, mapping symbol names to their declared values. It is a convenience
// for hosts that resolve hook targets by name; the hook core itself never
// consults it.
func Symbols(path string) (map[string]uintptr, error) {
	return objsym.Read(path)
}
