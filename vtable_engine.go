package hybridhook

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/essentialia/hybridhook/internal/mem"
)

// probeCap bounds table-length probing when no explicit length is given.
const probeCap = 1024

// slotPatch owns one in-place overwrite of a single table entry. Every
// object sharing the table observes the patched slot.
type slotPatch struct {
	slotAddr uintptr
	prev     uintptr
}

func installSlotPatch(tableBase uintptr, index uint32, replacement uintptr) (*slotPatch, error) {
	slot := tableBase + uintptr(index)*uintptr(mem.WordSize)
	prev := mem.ReadWord(slot)
	if err := mem.WriteWord(slot, replacement); err != nil {
		return nil, errors.Wrap(err, "patch table slot")
	}
	log.WithFields(logrus.Fields{"table": tableBase, "index": index}).Debug("slot patched")
	return &slotPatch{slotAddr: slot, prev: prev}, nil
}

func (p *slotPatch) remove() error {
	return errors.Wrap(mem.WriteWord(p.slotAddr, p.prev), "restore table slot")
}

// tableClone owns one full-table copy with a single redirected entry, and
// the repointing of one instance's table pointer at it. Other objects
// sharing the original table keep dispatching through it untouched.
type tableClone struct {
	instance uintptr
	prev     uintptr
	clone    []uintptr
}

// installTableClone also reports the function pointer the chosen slot held,
// read only once the index has been checked against the table length, so a
// wild index never touches memory past the table.
func installTableClone(instance uintptr, index uint32, replacement uintptr, tableLen int) (*tableClone, uintptr, error) {
	base := mem.ReadWord(instance)
	if tableLen <= 0 {
		tableLen = probeTableLen(base)
	}
	if int(index) >= tableLen {
		return nil, 0, errors.Wrapf(ErrBadSlot, "index %d, table length %d", index, tableLen)
	}
	clone := make([]uintptr, tableLen)
	for i := range clone {
		clone[i] = mem.ReadWord(base + uintptr(i*mem.WordSize))
	}
	original := clone[index]
	clone[index] = replacement
	if err := mem.WriteWord(instance, cloneBase(clone)); err != nil {
		return nil, 0, errors.Wrap(err, "swap table pointer")
	}
	log.WithFields(logrus.Fields{
		"instance": instance,
		"index":    index,
		"entries":  tableLen,
	}).Debug("table cloned")
	// the clone slice is pinned here for as long as the instance points at it
	return &tableClone{instance: instance, prev: base, clone: clone}, original, nil
}

func (c *tableClone) remove() error {
	return errors.Wrap(mem.WriteWord(c.instance, c.prev), "restore table pointer")
}

func cloneBase(table []uintptr) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(table)))
}

// probeTableLen counts entries until the terminating zero slot, capped so a
// missing terminator cannot walk off into unmapped memory forever.
func probeTableLen(base uintptr) int {
	n := 0
	for n < probeCap && mem.ReadWord(base+uintptr(n*mem.WordSize)) != 0 {
		n++
	}
	return n
}
