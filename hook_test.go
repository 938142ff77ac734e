//go:build amd64

package hybridhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	_ Hook = (*Detour)(nil)
	_ Hook = (*VTableHook)(nil)
)

// Generic code drives a mixed bag of hooks through the Hook capability and
// branches on IsDetour; the apply form a variant does not implement must
// answer with the no-op sentinel, not fail.
func TestHookKindsBehindOneCapability(t *testing.T) {
	table := testTable()
	vh := NewVTableHook(newInstance(t, table), SlotPatch)
	defer vh.Close()
	dt := NewDetour(0)

	hooks := []Hook{dt, vh}

	for _, h := range hooks {
		if h.IsDetour() {
			require.Zero(t, h.ApplyIndex(1, 0xBEEF), "index apply on a detour is a no-op")
		} else {
			require.Zero(t, h.Apply(0xBEEF), "address apply on a vtable hook is a no-op")
		}
	}

	require.EqualValues(t, 0x1001, vh.ApplyIndex(1, 0xBEEF))
	vh.UnhookAll()
}
