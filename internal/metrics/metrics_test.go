package metrics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSeries(t *testing.T) {
	r := NewRegistry()
	r.Record("loss", 0.9)
	r.Record("loss", 0.5)
	r.Record("accuracy", 0.7)

	loss := r.Series("loss")
	require.Len(t, loss, 2)
	assert.Equal(t, 0.9, loss[0].Value)
	assert.Equal(t, 0.5, loss[1].Value)
	assert.False(t, loss[0].At.IsZero())

	assert.Equal(t, []string{"accuracy", "loss"}, r.Names())
	assert.Empty(t, r.Series("unknown"))
}

func TestSnapshotIsDetached(t *testing.T) {
	r := NewRegistry()
	r.Record("loss", 1.0)

	snap := r.Snapshot()
	r.Record("loss", 2.0)

	assert.Len(t, snap["loss"], 1)
	assert.Len(t, r.Series("loss"), 2)
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("series-%d", n%2)
			for j := 0; j < 100; j++ {
				r.Record(name, float64(j))
			}
		}(i)
	}
	wg.Wait()

	total := len(r.Series("series-0")) + len(r.Series("series-1"))
	assert.Equal(t, 800, total)
}
