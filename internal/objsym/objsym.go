// Package objsym reads symbol tables out of object files so a host tool
// can resolve a hook target address by name. ELF, Mach-O and PE images are
// recognized by trial.
package objsym

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

type rawFile interface {
	Symbols() (map[string]uintptr, error)
}

var formats = []func(io.ReaderAt) (rawFile, error){
	openELF,
	openMachO,
	openPE,
}

// Read returns the symbol table of the object file at path, mapping symbol
// names to their declared values.
func Read(path string) (map[string]uintptr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, open := range formats {
		raw, err := open(f)
		if err != nil {
			continue
		}
		syms, err := raw.Symbols()
		if err != nil {
			return nil, errors.Wrapf(err, "read symbols of %s", path)
		}
		return syms, nil
	}
	return nil, errors.Errorf("open %s: unrecognized object file", path)
}
