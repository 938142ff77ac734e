// Package hybridhook redirects execution of already-compiled code at
// runtime. Two interception kinds are provided behind one capability:
//
//   - Detour: inline-patches a function entry with a jump to a replacement,
//     after relocating the overwritten prologue into a trampoline that stays
//     callable as the original.
//   - VTableHook: intercepts virtual dispatch for one live object instance,
//     either by patching a single slot of its (possibly shared) function
//     table in place, or by cloning the whole table and repointing only
//     that instance at the clone.
//
// The package mutates executable memory that other threads may be running
// through. Callers must guarantee no thread executes inside the patched
// byte range at the instant of apply or unhook, typically by hooking before
// the target becomes reachable.
//
// Failures are reported as a zero sentinel on the Hook surface, never as a
// panic; a failed apply leaves the hook inert and retryable.
package hybridhook

import "github.com/pkg/errors"

// Hook is the capability shared by both interception kinds. A variant that
// does not support one of the apply forms answers it with 0 rather than
// failing, so generic code can drive a mixed set of hooks and branch on
// IsDetour where the distinction matters.
type Hook interface {
	// Apply installs an interception at the hook's fixed code address,
	// redirecting it to dest. It returns the address of the original
	// callable (the trampoline for a detour), or 0 on failure or on a
	// variant without a fixed code address.
	Apply(dest uintptr) uintptr

	// ApplyIndex installs an interception of table slot index, redirecting
	// it to replacement. It returns the function pointer the slot held at
	// call time, or 0 on failure or on a variant without a table.
	ApplyIndex(index uint32, replacement uintptr) uintptr

	// IsDetour reports whether Apply is the meaningful form for this hook.
	IsDetour() bool
}

var (
	// ErrNotRelocatable means the target prologue contains an instruction
	// that cannot be moved into a trampoline (short branch or RIP-relative
	// operand whose rebased displacement does not fit).
	ErrNotRelocatable = errors.New("hybridhook: prologue not relocatable")
	// ErrBadSlot means a vtable slot index fell outside the probed table.
	ErrBadSlot = errors.New("hybridhook: slot index out of table range")
)

// noCopy makes `go vet -copylocks` flag by-value copies of hook types. A
// hook owns live patch state; copying one would duplicate that ownership.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
