package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/defistate/sugar-client-go/normalizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("rpc: request timed out")

type record struct {
	id uint64
}

// listing serves a fixed slice of records and can fail on demand.
type listing struct {
	mu      sync.Mutex
	records []record
	mode    Mode
	// failOnce fails the first request made at each of these cursors.
	failOnce map[uint64]bool
	// poison fails every request whose page would include this index.
	poison map[uint64]bool
	calls  int
	// attempts and sizes record every request, cursors and pages only the
	// successful ones.
	attempts []uint64
	sizes    []uint64
	cursors  []uint64
	pages    [][]record
}

func (l *listing) fetch(ctx context.Context, pageSize, cursor uint64) ([]record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.attempts = append(l.attempts, cursor)
	l.sizes = append(l.sizes, pageSize)

	if l.failOnce[cursor] {
		delete(l.failOnce, cursor)
		return nil, errTransient
	}

	var start int
	if l.mode == ModeMonotonicID {
		for start < len(l.records) && l.records[start].id < cursor {
			start++
		}
	} else {
		start = int(min(cursor, uint64(len(l.records))))
	}
	end := min(start+int(pageSize), len(l.records))
	for i := start; i < end; i++ {
		if l.poison[uint64(i)] {
			return nil, errTransient
		}
	}
	page := append([]record(nil), l.records[start:end]...)
	l.cursors = append(l.cursors, cursor)
	l.pages = append(l.pages, page)
	return page, nil
}

func sparseListing(n int) *listing {
	l := &listing{mode: ModeMonotonicID, failOnce: map[uint64]bool{}, poison: map[uint64]bool{}}
	for i := 0; i < n; i++ {
		l.records = append(l.records, record{id: uint64(3*i + 1)})
	}
	return l
}

func fastOptions(opts Options[record]) Options[record] {
	opts.RetryDelay = time.Nanosecond
	opts.MaxRetryDelay = time.Nanosecond
	return opts
}

func recordID(r record) (uint64, error) { return r.id, nil }

func TestDrainCompleteness(t *testing.T) {
	ctx := context.Background()
	sizes := []int{0, 1, 2, 7, 99, 100, 101, 257, 500}
	pages := []uint64{1, 2, 3, 10, 50, 100}

	for _, n := range sizes {
		for _, p := range pages {
			t.Run(fmt.Sprintf("offset n=%d p=%d", n, p), func(t *testing.T) {
				l := &listing{failOnce: map[uint64]bool{}}
				for i := 0; i < n; i++ {
					l.records = append(l.records, record{id: uint64(i)})
				}
				for c := uint64(0); c < uint64(n); c += 7 {
					l.failOnce[c] = true
				}

				got, err := Drain(ctx, l.fetch, fastOptions(Options[record]{Mode: ModeOffset, PageSize: p}))
				require.NoError(t, err)
				require.Len(t, got, n)
				for i, r := range got {
					assert.Equal(t, uint64(i), r.id)
				}
			})

			t.Run(fmt.Sprintf("monotonic n=%d p=%d", n, p), func(t *testing.T) {
				l := &listing{mode: ModeMonotonicID, failOnce: map[uint64]bool{}}
				for i := 0; i < n; i++ {
					// sparse ids
					l.records = append(l.records, record{id: uint64(3*i + 1)})
				}
				l.failOnce[1] = true

				got, err := Drain(ctx, l.fetch, fastOptions(Options[record]{Mode: ModeMonotonicID, PageSize: p, StartCursor: 1, IDFunc: recordID}))
				require.NoError(t, err)
				require.Len(t, got, n)
				assert.Equal(t, l.records, got)

				for i := 1; i < len(l.cursors); i++ {
					assert.Greater(t, l.cursors[i], l.cursors[i-1], "cursor must strictly increase")
				}
			})
		}
	}
}

func TestDrainSkipsPoisonRecord(t *testing.T) {
	l := &listing{poison: map[uint64]bool{5: true}}
	for i := 0; i < 10; i++ {
		l.records = append(l.records, record{id: uint64(i)})
	}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	got, err := Drain(context.Background(), l.fetch, fastOptions(Options[record]{
		Name:     "pools",
		Mode:     ModeOffset,
		PageSize: 4,
		Metrics:  metrics,
	}))
	require.NoError(t, err)

	var ids []uint64
	for _, r := range got {
		ids = append(ids, r.id)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 6, 7, 8, 9}, ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.skipped.WithLabelValues("pools")))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.failures.WithLabelValues("pools")))
}

func TestDrainSparseBadRecord(t *testing.T) {
	// ids 1, 4, ..., 88; index 10 holds id 31
	l := sparseListing(30)
	l.poison[10] = true
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	got, err := Drain(context.Background(), l.fetch, fastOptions(Options[record]{
		Name:        "venfts",
		Mode:        ModeMonotonicID,
		StartCursor: 1,
		IDFunc:      recordID,
		Metrics:     metrics,
	}))
	require.NoError(t, err, "one bad record must not abort a sweep that makes progress")
	require.Len(t, got, 29)
	for _, r := range got {
		assert.NotEqual(t, uint64(31), r.id)
	}
	assert.Equal(t, uint64(34), got[10].id)
	// cursors 29, 30 and 31 all land on id 31
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.skipped.WithLabelValues("venfts")))
}

func TestDrainIDCursorProgress(t *testing.T) {
	// ids 1, 4, ..., 58
	l := sparseListing(20)
	l.failOnce[23] = true

	got, err := Drain(context.Background(), l.fetch, fastOptions(Options[record]{
		Mode:        ModeMonotonicID,
		PageSize:    4,
		StartCursor: 1,
		IDFunc:      recordID,
	}))
	require.NoError(t, err)
	assert.Equal(t, l.records, got)

	assert.Equal(t, []uint64{1, 11, 23, 23, 29, 41, 53, 59}, l.attempts, "the fault at 23 is retried at the same cursor")
	assert.Equal(t, []uint64{4, 4, 4, 2, 4, 4, 4, 4}, l.sizes, "the retry halves the page, the next page restores it")

	require.Equal(t, len(l.cursors), len(l.pages))
	for k := 0; k+1 < len(l.pages); k++ {
		page := l.pages[k]
		require.NotEmpty(t, page)
		assert.Equal(t, page[len(page)-1].id+1, l.cursors[k+1], "cursor after page %d", k)
	}
	assert.Empty(t, l.pages[len(l.pages)-1], "only an empty page ends the sweep")
}

func TestDrainAbort(t *testing.T) {
	calls := 0
	fetch := func(context.Context, uint64, uint64) ([]record, error) {
		calls++
		return nil, errTransient
	}

	_, err := Drain(context.Background(), fetch, fastOptions(Options[record]{
		Name:                   "epochs",
		PageSize:               16,
		MaxConsecutiveFailures: 5,
	}))
	require.Error(t, err)

	var exhausted *PaginationExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "epochs", exhausted.Endpoint)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 5, calls)
}

func TestDrainStructuralErrorIsNotRetried(t *testing.T) {
	calls := 0
	fetch := func(context.Context, uint64, uint64) ([]record, error) {
		calls++
		return nil, &normalizer.StructuralError{Record: "lp", Reason: "unexpected arity 20"}
	}

	_, err := Drain(context.Background(), fetch, fastOptions(Options[record]{}))
	assert.True(t, normalizer.IsStructural(err))
	assert.Equal(t, 1, calls)
}

func TestDrainBound(t *testing.T) {
	var cursors []uint64
	fetch := func(_ context.Context, _ uint64, cursor uint64) ([]record, error) {
		cursors = append(cursors, cursor)
		if cursor == 6 {
			return []record{{id: 7}}, nil
		}
		return nil, nil
	}

	got, err := Drain(context.Background(), fetch, fastOptions(Options[record]{PageSize: 3, Bound: 10}))
	require.NoError(t, err)
	assert.Equal(t, []record{{id: 7}}, got)
	assert.Equal(t, []uint64{0, 3, 6, 9}, cursors, "empty pages before the bound do not end the sweep")
}

func TestDrainContext(t *testing.T) {
	t.Run("cancelled during a fetch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fetch := func(ctx context.Context, _ uint64, cursor uint64) ([]record, error) {
			if cursor > 0 {
				cancel()
				return nil, ctx.Err()
			}
			return []record{{id: 0}, {id: 1}}, nil
		}

		_, err := Drain(ctx, fetch, fastOptions(Options[record]{PageSize: 2}))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fetch := func(context.Context, uint64, uint64) ([]record, error) {
			cancel()
			return nil, errTransient
		}

		_, err := Drain(ctx, fetch, Options[record]{RetryDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDrainOptions(t *testing.T) {
	t.Run("monotonic mode requires an id reader", func(t *testing.T) {
		_, err := Drain(context.Background(), (&listing{}).fetch, Options[record]{Mode: ModeMonotonicID})
		assert.ErrorIs(t, err, ErrMissingIDFunc)
	})

	t.Run("page size is capped", func(t *testing.T) {
		var sizes []uint64
		fetch := func(_ context.Context, size, _ uint64) ([]record, error) {
			sizes = append(sizes, size)
			return nil, nil
		}
		_, err := Drain(context.Background(), fetch, Options[record]{PageSize: 5000, MaxPageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, []uint64{1000}, sizes)
	})
}
