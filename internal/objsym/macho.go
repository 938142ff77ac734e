package objsym

import (
	"debug/macho"
	"io"
)

type machoFile struct {
	macho *macho.File
}

func openMachO(r io.ReaderAt) (rawFile, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &machoFile{macho: f}, nil
}

func (f *machoFile) Symbols() (map[string]uintptr, error) {
	if f.macho.Symtab == nil {
		return map[string]uintptr{}, nil
	}
	out := make(map[string]uintptr, len(f.macho.Symtab.Syms))
	for _, s := range f.macho.Symtab.Syms {
		out[s.Name] = uintptr(s.Value)
	}
	return out, nil
}
