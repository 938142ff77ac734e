package hybridhook

import (
	"github.com/essentialia/hybridhook/internal/mem"
)

// Mode selects how a VTableHook installs its interceptions.
type Mode int

const (
	// SlotPatch overwrites one entry of the existing table in place. The
	// table may be shared; every instance dispatching through it observes
	// the patch. That aliasing is the accepted trade-off of this mode.
	SlotPatch Mode = iota
	// TableClone copies the whole table, redirects the chosen entry in the
	// copy and repoints only this instance's table pointer at it. Sharers
	// of the original table are unaffected.
	TableClone
)

// Option adjusts VTableHook construction.
type Option func(*VTableHook)

// WithTableLen fixes the number of table entries copied in TableClone
// mode. Without it the length is probed by scanning for a zero entry.
func WithTableLen(n int) Option {
	return func(v *VTableHook) { v.tableLen = n }
}

// VTableHook manages interceptions of virtual dispatch for one live object
// instance. Distinct slot indices may be hooked independently; each
// successful ApplyIndex appends an entry, and UnhookAll unwinds them all.
//
// ApplyIndex captures whatever function pointer the live table holds at
// call time. When several hook objects stack on the same slot, each one
// captures its predecessor's replacement; that chaining is intentional and
// calling code may depend on it.
//
// A VTableHook must not be copied; pass it by pointer.
type VTableHook struct {
	noCopy   noCopy
	instance uintptr
	mode     Mode
	tableLen int
	entries  []vtEntry
}

// vtEntry records one installed interception. Exactly one handle is set,
// matching the hook's mode.
type vtEntry struct {
	index    uint32
	original uintptr
	slot     *slotPatch
	clone    *tableClone
}

// NewVTableHook returns a hook bound to the object at instance, whose
// first word is its table pointer. A zero instance is allowed; ApplyIndex
// on such a hook always answers 0.
func NewVTableHook(instance uintptr, mode Mode, opts ...Option) *VTableHook {
	v := &VTableHook{instance: instance, mode: mode}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Apply is not meaningful for a vtable hook and always returns 0.
func (v *VTableHook) Apply(uintptr) uintptr { return 0 }

// ApplyIndex intercepts table slot index, redirecting it to replacement,
// and returns the function pointer the slot held at call time. It returns
// 0 when the instance or replacement is unset or the install fails; a
// failed install leaves the entry list untouched.
func (v *VTableHook) ApplyIndex(index uint32, replacement uintptr) uintptr {
	if v.instance == 0 || replacement == 0 {
		return 0
	}
	entry := vtEntry{index: index}
	switch v.mode {
	case TableClone:
		// the engine captures the slot after its bounds check, so an
		// out-of-range index reads nothing past the table
		clone, original, err := installTableClone(v.instance, index, replacement, v.tableLen)
		if err != nil {
			log.WithError(err).Debug("table clone failed")
			return 0
		}
		entry.clone, entry.original = clone, original
	default:
		table := mem.ReadWord(v.instance)
		original := mem.ReadWord(table + uintptr(index)*uintptr(mem.WordSize))
		slot, err := installSlotPatch(table, index, replacement)
		if err != nil {
			log.WithError(err).Debug("slot patch failed")
			return 0
		}
		entry.slot, entry.original = slot, original
	}
	v.entries = append(v.entries, entry)
	return entry.original
}

// IsDetour reports false.
func (v *VTableHook) IsDetour() bool { return false }

// Instance returns the object address the hook was constructed for.
func (v *VTableHook) Instance() uintptr { return v.instance }

// Hooked returns the number of installed entries.
func (v *VTableHook) Hooked() int { return len(v.entries) }

// UnhookAll releases every entry, restoring slot values or the original
// table pointer, and clears the entry list. It is idempotent. Entries are
// unwound newest-first so stacked interceptions of the same slot fall back
// through the values they captured.
func (v *VTableHook) UnhookAll() {
	for i := len(v.entries) - 1; i >= 0; i-- {
		e := v.entries[i]
		var err error
		switch {
		case e.slot != nil:
			err = e.slot.remove()
		case e.clone != nil:
			err = e.clone.remove()
		}
		if err != nil {
			log.WithError(err).Debug("vtable unhook failed")
		}
	}
	v.entries = nil
}

// Close releases every entry; it implements io.Closer so a hook can ride a
// host's shutdown path.
func (v *VTableHook) Close() error {
	v.UnhookAll()
	return nil
}
