//go:build amd64

package hybridhook

import (
	"github.com/essentialia/hybridhook/internal/disasm"
)

// Detour is one trampoline-based interception at a fixed code address.
//
// A Detour owns its disassembler and, while active, the installed patch and
// trampoline mapping. It must not be copied; pass it by pointer. The caller
// keeps it alive for as long as the interception must stay in place and
// releases it with Unhook or Close.
type Detour struct {
	noCopy noCopy
	src    uintptr
	dis    *disasm.Disassembler
	engine *detourEngine
}

// NewDetour returns an inactive detour for the function entry at src. A
// zero src is allowed; Apply on such a detour always answers 0.
func NewDetour(src uintptr) *Detour {
	return &Detour{src: src, dis: disasm.New()}
}

// Apply commits the detour, redirecting src to dest, and returns the
// trampoline address through which the original remains callable.
//
// While the detour is active, further Apply calls return the existing
// trampoline without touching the target again, whatever dest they carry.
// Apply returns 0 when src or dest is unset or the underlying patch fails;
// a failed apply tears down any partial state, leaving the detour inactive
// and retryable.
func (d *Detour) Apply(dest uintptr) uintptr {
	if d.engine != nil {
		return d.engine.trampoline
	}
	if d.src == 0 || dest == 0 {
		return 0
	}
	engine, err := installDetour(d.src, dest, d.dis)
	if err != nil {
		log.WithError(err).Debug("detour apply failed")
		return 0
	}
	d.engine = engine
	return engine.trampoline
}

// ApplyIndex is not meaningful for a detour and always returns 0.
func (d *Detour) ApplyIndex(uint32, uintptr) uintptr { return 0 }

// IsDetour reports true.
func (d *Detour) IsDetour() bool { return true }

// Original returns the trampoline address, to be converted to a function
// value of the target's signature by the caller. It is 0 unless the detour
// is active; calling through a stale value is the caller's contract to
// avoid.
func (d *Detour) Original() uintptr {
	if d.engine == nil {
		return 0
	}
	return d.engine.trampoline
}

// Src returns the address the detour was constructed for.
func (d *Detour) Src() uintptr { return d.src }

// Active reports whether the patch is currently installed.
func (d *Detour) Active() bool { return d.engine != nil }

// Unhook restores the original bytes at src and releases the trampoline.
// It is a no-op on an inactive detour.
func (d *Detour) Unhook() {
	if d.engine == nil {
		return
	}
	if err := d.engine.remove(); err != nil {
		log.WithError(err).Debug("detour unhook failed")
	}
	d.engine = nil
}

// Close releases the detour; it implements io.Closer so a hook can ride a
// host's shutdown path.
func (d *Detour) Close() error {
	d.Unhook()
	return nil
}
