package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ke0m/scaleup/internal/scheduler"
)

func TestNewWorkerRecordUniqueLocalIDs(t *testing.T) {
	used := make(map[string]bool)
	ids := make(map[string]bool, 50)
	for i := 0; i < 50; i++ {
		w := newWorkerRecord("scaleup", used)
		require.Len(t, w.LocalID, 6)
		assert.False(t, ids[w.LocalID], "local id %s generated twice", w.LocalID)
		ids[w.LocalID] = true
		assert.Equal(t, scheduler.StateUnsubmitted, w.State)
	}
}

func TestJobNameIsPrefixPlusLocalID(t *testing.T) {
	used := make(map[string]bool)
	w := newWorkerRecord("scaleup", used)
	assert.Equal(t, "scaleup"+w.LocalID, w.JobName())
}

func TestParamsRoundTrip(t *testing.T) {
	w := newWorkerRecord("scaleup", make(map[string]bool))
	p := scheduler.Params{Cores: 4, MemoryGB: 8, WallTimeMinutes: 60, Queue: "batch"}
	w.SetParams(p)
	assert.Equal(t, p, w.Params())
}
