package objsym

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

type elfFile struct {
	elf *elf.File
}

func openELF(r io.ReaderAt) (rawFile, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &elfFile{elf: f}, nil
}

func (f *elfFile) Symbols() (map[string]uintptr, error) {
	syms, err := f.elf.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		// stripped images are still valid objects, just empty ones
		return map[string]uintptr{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]uintptr, len(syms))
	for _, s := range syms {
		out[s.Name] = uintptr(s.Value)
	}
	return out, nil
}
