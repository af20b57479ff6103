package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/defistate/sugar-client-go/normalizer"
)

const (
	DefaultPageSize               = 500
	DefaultMaxPageSize            = 1000
	DefaultMaxConsecutiveFailures = 20
	DefaultMaxConsecutiveSkips    = 8

	initialRetryDelay = 250 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// ErrMissingIDFunc is returned when a monotonic-id sweep has no way to read
// record ids.
var ErrMissingIDFunc = errors.New("config: IDFunc is required for monotonic-id pagination")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FetchFunc fetches one page of at most pageSize records at cursor. It must
// be side-effect free for a fixed ledger state.
type FetchFunc[T any] func(ctx context.Context, pageSize, cursor uint64) ([]T, error)

// Options configures one sweep. Zero values select the defaults.
type Options[T any] struct {
	// Name labels the endpoint in logs, metrics and errors.
	Name string
	Mode Mode

	PageSize               uint64
	MaxPageSize            uint64
	StartCursor            uint64
	MaxConsecutiveFailures int
	MaxConsecutiveSkips    int
	Bound                  uint64

	// IDFunc reads the id of a record. Required in ModeMonotonicID.
	IDFunc func(T) (uint64, error)

	// RetryDelay is the first backoff after a fault; it doubles on every
	// further fault up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// PageDelay is a fixed pause between successful pages.
	PageDelay time.Duration

	Logger  Logger
	Metrics *Metrics
}

func (o Options[T]) withDefaults() Options[T] {
	if o.Name == "" {
		o.Name = "listing"
	}
	if o.MaxPageSize == 0 {
		o.MaxPageSize = DefaultMaxPageSize
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	o.PageSize = min(o.PageSize, o.MaxPageSize)
	if o.MaxConsecutiveFailures == 0 {
		o.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if o.MaxConsecutiveSkips == 0 {
		o.MaxConsecutiveSkips = DefaultMaxConsecutiveSkips
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = initialRetryDelay
	}
	if o.MaxRetryDelay == 0 {
		o.MaxRetryDelay = maxRetryDelay
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

func (o Options[T]) validate() error {
	if o.Mode == ModeMonotonicID && o.IDFunc == nil {
		return ErrMissingIDFunc
	}
	if o.Mode != ModeOffset && o.Mode != ModeMonotonicID {
		return fmt.Errorf("config: unknown pagination mode %d", o.Mode)
	}
	return nil
}

func (o Options[T]) policy() Policy {
	p := Policy{
		Mode:                   o.Mode,
		DefaultPageSize:        o.PageSize,
		MaxConsecutiveFailures: o.MaxConsecutiveFailures,
		MaxConsecutiveSkips:    o.MaxConsecutiveSkips,
	}
	if o.Mode == ModeOffset {
		p.Bound = o.Bound
	}
	return p
}

// Drain fetches every page of a listing and returns the records in server
// order. Records are not deduplicated.
//
// A fetch error is treated as transient unless it is a
// normalizer.StructuralError or a context error, both of which are returned
// as is. Transient faults shrink the page and eventually skip the offending
// record. Too many faults at one cursor, or too many records skipped without
// a successful page in between, abort the sweep with
// PaginationExhaustedError.
func Drain[T any](ctx context.Context, fetch FetchFunc[T], opts Options[T]) ([]T, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var (
		policy     = opts.policy()
		state      = State{Cursor: opts.StartCursor, PageSize: policy.DefaultPageSize}
		retryDelay = opts.RetryDelay
		records    []T
		logger     = opts.Logger
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if policy.Bound > 0 && state.Cursor >= policy.Bound {
			return records, nil
		}

		timer := opts.Metrics.fetchTimer(opts.Name)
		page, err := fetch(ctx, state.PageSize, state.Cursor)
		timer.ObserveDuration()

		if err != nil {
			if normalizer.IsStructural(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			opts.Metrics.incFailures(opts.Name)

			next, action := state.Next(Outcome{Fault: true}, policy)
			switch action {
			case ActionAbort:
				logger.Error("Pagination exhausted retries", "endpoint", opts.Name, "cursor", state.Cursor, "failures", next.CursorFailures, "skips", next.ConsecutiveSkips, "error", err)
				return nil, &PaginationExhaustedError{Endpoint: opts.Name, Cursor: state.Cursor, Err: err}
			case ActionSkip, ActionStop:
				logger.Warn("Skipping record that cannot be fetched", "endpoint", opts.Name, "cursor", state.Cursor, "error", err)
				opts.Metrics.incSkipped(opts.Name)
				if action == ActionStop {
					return records, nil
				}
			default:
				logger.Debug("Fetch failed, retrying with smaller page", "endpoint", opts.Name, "cursor", state.Cursor, "page_size", next.PageSize, "error", err, "delay", retryDelay)
			}

			state = next
			if err := sleep(ctx, retryDelay); err != nil {
				return nil, err
			}
			retryDelay = min(retryDelay*2, opts.MaxRetryDelay)
			continue
		}

		retryDelay = opts.RetryDelay
		outcome := Outcome{Count: len(page)}
		if policy.Mode == ModeMonotonicID && len(page) > 0 {
			id, err := opts.IDFunc(page[len(page)-1])
			if err != nil {
				return nil, err
			}
			outcome.LastID = id
		}

		records = append(records, page...)
		opts.Metrics.incPages(opts.Name)

		next, action := state.Next(outcome, policy)
		if action == ActionStop {
			logger.Debug("Pagination finished", "endpoint", opts.Name, "records", len(records), "cursor", next.Cursor)
			return records, nil
		}
		state = next

		if opts.PageDelay > 0 {
			if err := sleep(ctx, opts.PageDelay); err != nil {
				return nil, err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
