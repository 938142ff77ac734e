//go:build amd64

package hybridhook

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/essentialia/hybridhook/internal/disasm"
	"github.com/essentialia/hybridhook/internal/mem"
)

const (
	// JMP rel32
	jmpRel32Len = 5
	// JMP [RIP+0] with the 64-bit target inline; clobbers no register
	jmpAbsLen = 14
)

// detourEngine owns one installed inline patch: the trampoline mapping and
// the prologue bytes it replaced at src.
type detourEngine struct {
	src        uintptr
	trampoline uintptr
	buf        []byte
	original   []byte
}

// installDetour relocates the prologue at src into a fresh executable
// buffer, appends a jump back to the first unrelocated instruction, then
// overwrites the entry with a jump to dest.
func installDetour(src, dest uintptr, dis *disasm.Disassembler) (*detourEngine, error) {
	patchLen := jmpRel32Len
	if !rel32Reachable(src+jmpRel32Len, dest) {
		patchLen = jmpAbsLen
	}
	code, err := dis.DecodeMin(src, patchLen)
	if err != nil {
		return nil, err
	}

	tramp, buf, err := mem.AllocExec(code.Len + jmpAbsLen)
	if err != nil {
		return nil, err
	}
	body, err := relocate(src, tramp, code)
	if err != nil {
		freeTrampoline(buf)
		return nil, err
	}
	body = append(body, jmpAbs(src+uintptr(code.Len))...)
	copy(buf, body)

	original := make([]byte, code.Len)
	copy(original, mem.Slice(src, code.Len))

	stub := jmpAbs(dest)
	if patchLen == jmpRel32Len {
		stub = jmpRel32(src, dest)
	}
	if err := mem.Write(src, stub); err != nil {
		freeTrampoline(buf)
		return nil, errors.Wrap(err, "patch entry")
	}

	log.WithFields(logrus.Fields{
		"src":   src,
		"dest":  dest,
		"tramp": tramp,
		"moved": code.Len,
	}).Debug("detour installed")
	return &detourEngine{src: src, trampoline: tramp, buf: buf, original: original}, nil
}

// remove restores the original prologue bytes, returns the entry page to
// read-execute and releases the trampoline.
func (e *detourEngine) remove() error {
	if err := mem.Write(e.src, e.original); err != nil {
		return errors.Wrap(err, "restore entry")
	}
	if err := mem.Protect(e.src, len(e.original)); err != nil {
		return errors.Wrap(err, "reprotect entry")
	}
	log.WithField("src", e.src).Debug("detour removed")
	err := mem.FreeExec(e.buf)
	e.buf = nil
	e.trampoline = 0
	return err
}

// relocate copies the covered instructions so they stay correct at dst.
// rel32 branch displacements are rebased; short branches and RIP-relative
// operands make the prologue unmovable.
func relocate(src, dst uintptr, code *disasm.Code) ([]byte, error) {
	out := make([]byte, 0, code.Len)
	from := mem.Slice(src, code.Len)
	for _, in := range code.Insts {
		raw := from[in.Offset : in.Offset+in.Len]
		switch {
		case in.RelBranchShort || in.RIPMem:
			return nil, errors.Wrapf(ErrNotRelocatable, "%s at %#x", in.Op, src+uintptr(in.Offset))
		case in.RelBranch32:
			end := uintptr(in.Offset + in.Len)
			disp := int32(binary.LittleEndian.Uint32(raw[in.Len-4:]))
			target := src + end + uintptr(disp)
			// a branch back into the moved range would land on the
			// patched entry bytes, not the relocated copy
			if target >= src && target < src+uintptr(code.Len) {
				return nil, errors.Wrapf(ErrNotRelocatable, "%s targets relocated range at %#x", in.Op, target)
			}
			rebased := int64(target) - int64(dst+end)
			if rebased < math.MinInt32 || rebased > math.MaxInt32 {
				return nil, errors.Wrapf(ErrNotRelocatable, "rebased %s displacement overflows", in.Op)
			}
			fixed := append([]byte(nil), raw...)
			binary.LittleEndian.PutUint32(fixed[in.Len-4:], uint32(int32(rebased)))
			out = append(out, fixed...)
		default:
			out = append(out, raw...)
		}
	}
	return out, nil
}

func freeTrampoline(buf []byte) {
	if err := mem.FreeExec(buf); err != nil {
		log.WithError(err).Debug("trampoline release failed")
	}
}

// jmpRel32 encodes JMP rel32 at from, landing on to.
func jmpRel32(from, to uintptr) []byte {
	b := make([]byte, jmpRel32Len)
	b[0] = 0xE9
	binary.LittleEndian.PutUint32(b[1:], uint32(to-(from+jmpRel32Len)))
	return b
}

// jmpAbs encodes FF 25 00000000 followed by the inline 64-bit target.
func jmpAbs(to uintptr) []byte {
	b := append(make([]byte, 0, jmpAbsLen), 0xFF, 0x25, 0x00, 0x00, 0x00, 0x00)
	return binary.LittleEndian.AppendUint64(b, uint64(to))
}

func rel32Reachable(from, to uintptr) bool {
	d := int64(to) - int64(from)
	return d >= math.MinInt32 && d <= math.MaxInt32
}
