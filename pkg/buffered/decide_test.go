package buffered

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fetching is a loop state where data is wanted at offset 100 and the
// source sits right there with data ready.
func fetching() snapshot {
	return snapshot{
		size:            1000,
		offset:          100,
		sourcePos:       100,
		sourceAvailable: true,
		gapAtSource:     true,
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(s *snapshot)
		want   action
	}{
		{
			name:   "fetch at consumer offset",
			modify: func(*snapshot) {},
			want:   actionFetch,
		},
		{
			name: "stop wins over everything",
			modify: func(s *snapshot) {
				s.stop = true
				s.seekRequested = true
				s.fetchFailed = true
			},
			want: actionStop,
		},
		{
			name: "pending seek wins over idle and errors",
			modify: func(s *snapshot) {
				s.seekRequested = true
				s.idle = true
				s.fetchFailed = true
			},
			want: actionSeek,
		},
		{
			name: "completed seek waits for its caller before reconciling",
			modify: func(s *snapshot) {
				s.seekBusy = true
				s.sourcePos = 900
			},
			want: actionWait,
		},
		{
			name: "idle waits",
			modify: func(s *snapshot) {
				s.idle = true
			},
			want: actionWait,
		},
		{
			name: "pending fetch error waits",
			modify: func(s *snapshot) {
				s.fetchFailed = true
			},
			want: actionWait,
		},
		{
			name: "stale source position is repositioned",
			modify: func(s *snapshot) {
				s.sourcePos = 700
			},
			want: actionReposition,
		},
		{
			name: "stale check applies even when the source is unavailable",
			modify: func(s *snapshot) {
				s.sourcePos = 700
				s.sourceAvailable = false
			},
			want: actionReposition,
		},
		{
			name: "source ahead of a covered offset keeps prefetching",
			modify: func(s *snapshot) {
				s.sourcePos = 700
				s.offsetCovered = true
			},
			want: actionFetch,
		},
		{
			name: "source ahead of the end offset keeps prefetching",
			modify: func(s *snapshot) {
				s.sourcePos = 700
				s.offset = 1000
			},
			want: actionFetch,
		},
		{
			name: "unavailable source waits",
			modify: func(s *snapshot) {
				s.sourceAvailable = false
			},
			want: actionWait,
		},
		{
			name: "source at EOF with covered offset waits",
			modify: func(s *snapshot) {
				s.sourcePos = 1000
				s.sourceEOF = true
				s.offsetCovered = true
			},
			want: actionWait,
		},
		{
			name: "source ended before the consumer offset was covered",
			modify: func(s *snapshot) {
				s.sourceEOF = true
			},
			want: actionTruncated,
		},
		{
			name: "no gap and covered offset goes idle",
			modify: func(s *snapshot) {
				s.sourcePos = 500
				s.offsetCovered = true
				s.gapAtSource = false
			},
			want: actionIdle,
		},
		{
			name: "no gap and offset at the end goes idle",
			modify: func(s *snapshot) {
				s.offset = 1000
				s.sourcePos = 1000
				s.gapAtSource = false
			},
			want: actionIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := fetching()
			tt.modify(&s)

			assert.Equal(t, tt.want, decide(s), "got %s", decide(s))
		})
	}
}

func TestSnapshot_Stale(t *testing.T) {
	t.Parallel()

	s := fetching()
	assert.False(t, s.stale(), "source at the consumer offset")

	s.sourcePos = 0
	assert.True(t, s.stale(), "source behind an uncovered offset")

	s.offsetCovered = true
	assert.False(t, s.stale(), "offset is served from the buffer")

	s.offsetCovered = false
	s.offset = s.size
	assert.False(t, s.stale(), "offset at the end is always available")
}
