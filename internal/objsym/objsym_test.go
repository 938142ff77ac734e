package objsym

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// minimalELF is a bare ELF64 executable header: no program headers, no
// sections, no symbol table. Readers must treat it as a valid object with
// an empty symbol table rather than an error.
var minimalELF = []byte{
	0x7F, 'E', 'L', 'F', 2, 1, 1, 0, // ident: ELF64, little endian
	0, 0, 0, 0, 0, 0, 0, 0,
	2, 0, // e_type: EXEC
	0x3E, 0, // e_machine: x86-64
	1, 0, 0, 0, // e_version
	0, 0, 0, 0, 0, 0, 0, 0, // e_entry
	0, 0, 0, 0, 0, 0, 0, 0, // e_phoff
	0, 0, 0, 0, 0, 0, 0, 0, // e_shoff
	0, 0, 0, 0, // e_flags
	0x40, 0, // e_ehsize
	0, 0, // e_phentsize
	0, 0, // e_phnum
	0x40, 0, // e_shentsize
	0, 0, // e_shnum
	0, 0, // e_shstrndx
}

func TestReadOwnExecutable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	// `go test` may link the transient binary without a symtab, so only
	// the read itself is asserted, not the table's content
	syms, err := Read(exe)
	require.NoError(t, err)
	require.NotNil(t, syms)
}

func TestReadStrippedELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripped")
	require.NoError(t, os.WriteFile(path, minimalELF, 0o644))

	syms, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, syms)
	require.Empty(t, syms)
}

func TestReadRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-object")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
