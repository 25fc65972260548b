package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "policy.md", Operation: OpCreate})

	events := receive(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "policy.md", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_BurstBecomesOneSortedBatch(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"b.md", "a.md", "b.md", "c.txt"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	events := receive(t, d)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"a.md", "b.md", "c.txt"}, []string{events[0].Path, events[1].Path, events[2].Path})
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_CoalescingRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation // empty means the events cancel out
	}{
		{"create then modify", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"create then delete", []Operation{OpCreate, OpDelete}, nil},
		{"delete then create", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify then delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "x.md", Operation: op})
			}
			// A sentinel keeps the batch non-empty when x.md cancels out.
			d.Add(FileEvent{Path: "zz.md", Operation: OpModify})

			events := receive(t, d)
			var got []Operation
			for _, e := range events {
				if e.Path == "x.md" {
					got = append(got, e.Operation)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebouncer_StopClosesOutputAndIgnoresAdds(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Add(FileEvent{Path: "a.md", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.md", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "CONFIG_CHANGE", OpConfigChange.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}
