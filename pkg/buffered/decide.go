package buffered

type action int

const (
	actionWait action = iota
	actionStop
	actionSeek
	actionReposition
	actionFetch
	actionIdle
	actionTruncated
)

func (a action) String() string {
	switch a {
	case actionWait:
		return "wait"
	case actionStop:
		return "stop"
	case actionSeek:
		return "seek"
	case actionReposition:
		return "reposition"
	case actionFetch:
		return "fetch"
	case actionIdle:
		return "idle"
	case actionTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// snapshot is the state the fetch loop decides on, captured under the stream lock.
type snapshot struct {
	stop          bool
	seekRequested bool
	idle          bool
	fetchFailed   bool

	// seekBusy stays set after a seek completed until its caller took the
	// result and moved the offset.
	seekBusy bool

	size          int64
	offset        int64
	offsetCovered bool

	sourcePos       int64
	sourceAvailable bool
	sourceEOF       bool
	// gapAtSource is set when the buffer can take data at sourcePos.
	gapAtSource bool
}

// offsetAvailable reports whether a Read at the consumer offset returns without waiting.
func (s snapshot) offsetAvailable() bool {
	return s.offset >= s.size || s.offsetCovered
}

// stale reports whether the source is reading from a position the consumer
// no longer needs while the consumer waits for data at its own offset.
func (s snapshot) stale() bool {
	return s.sourcePos != s.offset && !s.offsetAvailable()
}

func decide(s snapshot) action {
	switch {
	case s.stop:
		return actionStop
	case s.seekRequested:
		return actionSeek
	case s.seekBusy:
		return actionWait
	case s.idle || s.fetchFailed:
		return actionWait
	case s.stale():
		return actionReposition
	case !s.sourceAvailable:
		return actionWait
	case s.sourceEOF:
		if s.sourcePos == s.offset && !s.offsetAvailable() {
			return actionTruncated
		}

		return actionWait
	case !s.gapAtSource:
		if s.offsetAvailable() {
			return actionIdle
		}

		return actionReposition
	default:
		return actionFetch
	}
}
