//go:build amd64

package hybridhook

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/essentialia/hybridhook/internal/mem"
)

// movEaxRet is MOV EAX, 42; RET — a five byte first instruction, so a
// rel32 entry patch covers exactly one instruction.
var movEaxRet = []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}

// execBuffer maps an RWX page holding code and frees it with the test.
func execBuffer(t *testing.T, code []byte) uintptr {
	t.Helper()
	addr, buf, err := mem.AllocExec(len(code) + jmpAbsLen)
	require.NoError(t, err)
	copy(buf, code)
	t.Cleanup(func() { require.NoError(t, mem.FreeExec(buf)) })
	return addr
}

func TestDetourApplyPatchesAndRestores(t *testing.T) {
	src := execBuffer(t, movEaxRet)
	dest := execBuffer(t, []byte{0xB8, 0x07, 0x00, 0x00, 0x00, 0xC3})
	before := append([]byte(nil), mem.Slice(src, len(movEaxRet))...)

	d := NewDetour(src)
	tramp := d.Apply(dest)
	require.NotZero(t, tramp)
	require.True(t, d.Active())
	require.Equal(t, tramp, d.Original())

	// the trampoline holds the relocated first instruction followed by an
	// absolute jump back to the unmoved remainder
	require.Equal(t, movEaxRet[:5], mem.Slice(tramp, 5))
	back := mem.Slice(tramp+5, jmpAbsLen)
	require.Equal(t, []byte{0xFF, 0x25, 0x00, 0x00, 0x00, 0x00}, back[:6])
	require.Equal(t, uint64(src+5), binary.LittleEndian.Uint64(back[6:]))

	// the entry now jumps to dest
	patched := mem.Slice(src, jmpRel32Len)
	if rel32Reachable(src+jmpRel32Len, dest) {
		require.Equal(t, byte(0xE9), patched[0])
		require.Equal(t, uint32(dest-(src+jmpRel32Len)), binary.LittleEndian.Uint32(patched[1:]))
	} else {
		require.Equal(t, []byte{0xFF, 0x25}, patched[:2])
	}

	d.Unhook()
	require.False(t, d.Active())
	require.Zero(t, d.Original())
	require.Equal(t, before, mem.Slice(src, len(movEaxRet)))
}

func TestDetourApplyIsIdempotent(t *testing.T) {
	src := execBuffer(t, movEaxRet)
	dest := execBuffer(t, movEaxRet)

	d := NewDetour(src)
	defer d.Close()

	tramp := d.Apply(dest)
	require.NotZero(t, tramp)
	snapshot := append([]byte(nil), mem.Slice(src, len(movEaxRet))...)

	// a second apply returns the same trampoline and repatches nothing,
	// whatever destination it names
	require.Equal(t, tramp, d.Apply(dest))
	require.Equal(t, tramp, d.Apply(0xDEADBEEF))
	require.Equal(t, snapshot, mem.Slice(src, len(movEaxRet)))
}

func TestDetourRehookAfterClose(t *testing.T) {
	src := execBuffer(t, movEaxRet)
	dest := execBuffer(t, movEaxRet)
	before := append([]byte(nil), mem.Slice(src, len(movEaxRet))...)

	d := NewDetour(src)
	require.NotZero(t, d.Apply(dest))
	require.NoError(t, d.Close())
	require.Equal(t, before, mem.Slice(src, len(movEaxRet)))

	// a fresh hook on the restored target behaves like a first-ever hook
	d2 := NewDetour(src)
	defer d2.Close()
	require.NotZero(t, d2.Apply(dest))
	require.NoError(t, d2.Close())
	require.Equal(t, before, mem.Slice(src, len(movEaxRet)))
}

func TestDetourFarDestinationUsesAbsoluteStub(t *testing.T) {
	// three five-byte instructions cover the 14 byte absolute stub
	code := []byte{
		0xB8, 0x2A, 0x00, 0x00, 0x00,
		0xB8, 0x2B, 0x00, 0x00, 0x00,
		0xB8, 0x2C, 0x00, 0x00, 0x00,
		0xC3,
	}
	src := execBuffer(t, code)
	dest := src + (uintptr(1) << 34) // out of rel32 reach, never read
	before := append([]byte(nil), mem.Slice(src, len(code))...)

	d := NewDetour(src)
	tramp := d.Apply(dest)
	require.NotZero(t, tramp)

	patched := mem.Slice(src, jmpAbsLen)
	require.Equal(t, []byte{0xFF, 0x25, 0x00, 0x00, 0x00, 0x00}, patched[:6])
	require.Equal(t, uint64(dest), binary.LittleEndian.Uint64(patched[6:]))

	// all fifteen covered bytes moved into the trampoline
	require.Equal(t, code[:15], mem.Slice(tramp, 15))

	d.Unhook()
	require.Equal(t, before, mem.Slice(src, len(code)))
}

func TestDetourRelocatesRel32Branch(t *testing.T) {
	// CALL rel32 +10 (lands on the trailing RET)
	code := []byte{0xE8, 0x0A, 0x00, 0x00, 0x00, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0xC3}
	src := execBuffer(t, code)
	dest := execBuffer(t, movEaxRet)

	d := NewDetour(src)
	defer d.Close()
	tramp := d.Apply(dest)
	require.NotZero(t, tramp)

	// the moved CALL still lands on the original target
	moved := mem.Slice(tramp, 5)
	require.Equal(t, byte(0xE8), moved[0])
	rebased := int64(int32(binary.LittleEndian.Uint32(moved[1:])))
	require.Equal(t, int64(src)+5+0x0A, int64(tramp)+5+rebased)
}

func TestDetourBranchIntoMovedRangeFailsSoftly(t *testing.T) {
	// CALL rel32 -5: the branch lands on its own first byte, inside the
	// range the patch overwrites
	src := execBuffer(t, []byte{0xE8, 0xFB, 0xFF, 0xFF, 0xFF, 0x90, 0xC3})
	dest := execBuffer(t, movEaxRet)
	before := append([]byte(nil), mem.Slice(src, 7)...)

	d := NewDetour(src)
	require.Zero(t, d.Apply(dest))
	require.False(t, d.Active())
	require.Equal(t, before, mem.Slice(src, 7))
}

func TestDetourNullGuards(t *testing.T) {
	unset := NewDetour(0)
	require.Zero(t, unset.Apply(0x1000))
	require.False(t, unset.Active())

	src := execBuffer(t, movEaxRet)
	d := NewDetour(src)
	require.Zero(t, d.Apply(0))
	require.False(t, d.Active())
	require.True(t, d.IsDetour())

	// unhook on an inactive detour is a no-op
	d.Unhook()
	require.NoError(t, d.Close())
}

func TestDetourUnmovablePrologueFailsSoftly(t *testing.T) {
	// a short branch cannot be relocated
	src := execBuffer(t, []byte{0xEB, 0x02, 0x90, 0x90, 0x90, 0x90, 0xC3})
	dest := execBuffer(t, movEaxRet)
	before := append([]byte(nil), mem.Slice(src, 7)...)

	d := NewDetour(src)
	require.Zero(t, d.Apply(dest))
	require.False(t, d.Active())
	require.Equal(t, before, mem.Slice(src, 7))

	// still inert and retryable
	require.Zero(t, d.Apply(dest))
	require.False(t, d.Active())
}
