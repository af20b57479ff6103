package pagination

// Mode is the cursor discipline of a listing endpoint.
type Mode int

const (
	// ModeOffset listings are dense and index based. The cursor advances by
	// the requested page size and a short page is the last one.
	ModeOffset Mode = iota
	// ModeMonotonicID listings are keyed by an ever-increasing id and may be
	// sparse. The cursor advances past the last id seen and only an empty
	// page ends the sweep.
	ModeMonotonicID
)

func (m Mode) String() string {
	switch m {
	case ModeOffset:
		return "offset"
	case ModeMonotonicID:
		return "monotonic-id"
	default:
		return "unknown"
	}
}

// Action tells the driver what to do after a transition.
type Action int

const (
	// ActionEmit keeps the page and fetches the next one.
	ActionEmit Action = iota
	// ActionRetry refetches at the same cursor with a smaller page.
	ActionRetry
	// ActionSkip steps over a record that cannot be fetched even alone.
	ActionSkip
	// ActionStop keeps the page, if any, and ends the sweep.
	ActionStop
	// ActionAbort ends the sweep with PaginationExhaustedError.
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionEmit:
		return "emit"
	case ActionRetry:
		return "retry"
	case ActionSkip:
		return "skip"
	case ActionStop:
		return "stop"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Policy is the fixed configuration a transition depends on.
type Policy struct {
	Mode            Mode
	DefaultPageSize uint64
	// MaxConsecutiveFailures caps the faults at a single cursor.
	MaxConsecutiveFailures int
	// MaxConsecutiveSkips caps the records skipped without a successful
	// fetch in between.
	MaxConsecutiveSkips int

	// Bound, when set for an offset listing, is the number of indices behind
	// it. The sweep then ends at the bound instead of on a short page.
	Bound uint64
}

// State is the cursor of one sweep.
type State struct {
	Cursor   uint64
	PageSize uint64

	// ConsecutiveFailures counts faults since the last successful fetch.
	ConsecutiveFailures int
	// CursorFailures counts faults at the current cursor.
	CursorFailures int
	// ConsecutiveSkips counts records skipped since the last successful fetch.
	ConsecutiveSkips int
}

// Outcome is what a single fetch produced.
type Outcome struct {
	Fault  bool
	Count  int
	LastID uint64
}

// Next is the pure transition of the paginator.
func (s State) Next(o Outcome, p Policy) (State, Action) {
	if o.Fault {
		return s.fault(p)
	}

	next := State{Cursor: s.Cursor, PageSize: p.DefaultPageSize}
	switch p.Mode {
	case ModeMonotonicID:
		if o.Count == 0 {
			return next, ActionStop
		}
		next.Cursor = o.LastID + 1
		// ids that regress would loop forever
		if next.Cursor <= s.Cursor {
			next.Cursor = s.Cursor + 1
		}
		return next, ActionEmit

	default:
		next.Cursor = s.Cursor + s.PageSize
		if p.Bound > 0 {
			if next.Cursor >= p.Bound {
				return next, ActionStop
			}
			return next, ActionEmit
		}
		if uint64(o.Count) < s.PageSize {
			return next, ActionStop
		}
		return next, ActionEmit
	}
}

func (s State) fault(p Policy) (State, Action) {
	s.ConsecutiveFailures++
	s.CursorFailures++

	if p.MaxConsecutiveFailures > 0 && s.CursorFailures >= p.MaxConsecutiveFailures {
		return s, ActionAbort
	}

	if s.PageSize > 1 {
		s.PageSize /= 2
		return s, ActionRetry
	}

	// A single record gets one retry of its own before it is skipped.
	if s.CursorFailures < 2 {
		return s, ActionRetry
	}

	if p.MaxConsecutiveSkips > 0 && s.ConsecutiveSkips >= p.MaxConsecutiveSkips {
		return s, ActionAbort
	}

	s.Cursor++
	s.PageSize = p.DefaultPageSize
	s.CursorFailures = 0
	s.ConsecutiveSkips++
	if p.Mode == ModeOffset && p.Bound > 0 && s.Cursor >= p.Bound {
		return s, ActionStop
	}
	return s, ActionSkip
}
