// Package disasm decides how much of a function prologue can be lifted out
// and moved. Given a start address it decodes forward, one instruction at a
// time, until the requested byte count is covered without splitting an
// instruction, and classifies each instruction for relocation: position
// independent, rel32 branch (displacement can be rebased), or something the
// engine must refuse (short branches, RIP-relative operands, an early
// return).
package disasm

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/essentialia/hybridhook/internal/mem"
)

// maxInstLen is the architectural x86 instruction length limit.
const maxInstLen = 15

var (
	// ErrShortDecode means decoding failed before minLen bytes were covered,
	// usually padding or data in the middle of the requested range.
	ErrShortDecode = errors.New("disasm: cannot cover requested length")
	// ErrEarlyReturn means the function ends inside the requested range.
	ErrEarlyReturn = errors.New("disasm: return inside relocation range")
)

// Inst is one decoded instruction inside a relocation range.
type Inst struct {
	// Offset is the byte offset from the range start.
	Offset int
	// Len is the encoded length in bytes.
	Len int
	// RelBranch32 marks a branch whose rel32 displacement occupies the
	// final four bytes of the encoding (JMP/Jcc/CALL rel32).
	RelBranch32 bool
	// RelBranchShort marks a branch with a displacement too narrow to
	// rebase (rel8 forms, JCXZ, LOOP).
	RelBranchShort bool
	// RIPMem marks an instruction with a RIP-relative memory operand.
	RIPMem bool
	// Op is the decoded mnemonic, kept for debug traces.
	Op string
}

// Code is the result of one DecodeMin call.
type Code struct {
	Insts []Inst
	// Len is the total byte count covered, always >= the requested minimum.
	Len int
}

// Disassembler decodes x86-64 instruction streams. The zero value is not
// usable; construct with New. Decoded metadata remains valid for the
// lifetime of the Disassembler, so a hook built from it must keep it alive.
type Disassembler struct {
	mode int
}

// New returns a Disassembler for the build's instruction width.
func New() *Disassembler {
	return &Disassembler{mode: 8 * mem.WordSize}
}

// DecodeMin decodes instructions starting at addr until at least minLen
// bytes are covered, never stopping mid-instruction. Each step views at
// most one instruction's worth of bytes, so decoding near the end of a
// mapping never touches pages past the code itself.
func (d *Disassembler) DecodeMin(addr uintptr, minLen int) (*Code, error) {
	code := &Code{}
	for code.Len < minLen {
		inst, err := x86asm.Decode(mem.Slice(addr+uintptr(code.Len), maxInstLen), d.mode)
		if err != nil {
			return nil, errors.Wrapf(ErrShortDecode, "decode at %#x+%d: %v", addr, code.Len, err)
		}
		if inst.Op == x86asm.RET {
			return nil, errors.Wrapf(ErrEarlyReturn, "at %#x+%d", addr, code.Len)
		}
		code.Insts = append(code.Insts, classify(inst, code.Len))
		code.Len += inst.Len
	}
	return code, nil
}

func classify(inst x86asm.Inst, offset int) Inst {
	out := Inst{
		Offset: offset,
		Len:    inst.Len,
		Op:     inst.Op.String(),
	}
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		switch arg := a.(type) {
		case x86asm.Rel:
			// rel32 encodings of JMP/Jcc/CALL all end with the
			// displacement; anything shorter cannot be rebased.
			if inst.Len >= 5 {
				out.RelBranch32 = true
			} else {
				out.RelBranchShort = true
			}
		case x86asm.Mem:
			if arg.Base == x86asm.RIP {
				out.RIPMem = true
			}
		}
	}
	return out
}
