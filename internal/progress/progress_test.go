package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 8, 0},
		{1, 8, 13},
		{4, 8, 50},
		{7, 8, 88},
		{8, 8, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestChannelReporter_DropsWhenFull(t *testing.T) {
	ch := make(chan Update, 1)
	r := NewChannelReporter(ch)

	r.Report(Update{Completed: 1})
	r.Report(Update{Completed: 2})

	assert.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Completed)
}

func TestMultiReporter_FansOut(t *testing.T) {
	var a, b []Update
	m := NewMultiReporter(Func(func(u Update) { a = append(a, u) }))
	m.Add(Func(func(u Update) { b = append(b, u) }))
	m.Add(nil)

	m.Report(NewUpdate("job", 1, 2, "unit 1", nil))

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Equal(t, 50, a[0].Percent)
	assert.Equal(t, "job", b[0].JobID)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, Noop{}, OrNoop(nil))

	r := Func(func(Update) {})
	assert.NotNil(t, OrNoop(r))
}
