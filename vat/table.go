package vat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lthibault/log"
)

// Table is an in-process Restorer.  Sturdy refs it issues are bare
// uuid tokens; URL renders them under the table's host authority.
// It backs the service shells and is the default Resolver in tests.
type Table struct {
	Host   string
	Logger log.Logger

	mu   sync.Mutex
	caps map[SturdyRef]any
}

// NewTable returns an empty table for host.
func NewTable(host string) *Table {
	return &Table{
		Host: host,
		caps: make(map[SturdyRef]any),
	}
}

func (t *Table) Save(ctx context.Context, cap any, opt ...SaveOption) (SturdyRef, Unsaver, error) {
	var conf saveConfig
	for _, option := range opt {
		option(&conf)
	}

	if conf.token == "" {
		conf.token = uuid.New().String()
	}

	ref := SturdyRef(conf.token)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.caps == nil {
		t.caps = make(map[SturdyRef]any)
	}
	t.caps[ref] = cap

	if t.Logger != nil {
		t.Logger.WithField("ref", string(ref)).Debug("saved capability")
	}

	return ref, &unsaver{table: t, ref: ref}, nil
}

func (t *Table) Restore(ctx context.Context, ref SturdyRef) (any, error) {
	key := SturdyRef(Token(ref))

	t.mu.Lock()
	defer t.mu.Unlock()

	cap, ok := t.caps[key]
	if !ok {
		return nil, ErrNotFound
	}

	return cap, nil
}

// Resolve makes Table satisfy Resolver directly, so in-process
// components can connect without a wire transport.
func (t *Table) Resolve(ctx context.Context, ref SturdyRef) (any, error) {
	return t.Restore(ctx, ref)
}

func (t *Table) URL(ref SturdyRef) string {
	host := t.Host
	if host == "" {
		host = "localhost"
	}

	return "flowmesh://" + host + "/" + Token(ref)
}

// Len reports the number of live refs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.caps)
}

type unsaver struct {
	table *Table
	ref   SturdyRef
	once  sync.Once
}

func (u *unsaver) Release(ctx context.Context) error {
	u.once.Do(func() {
		u.table.mu.Lock()
		defer u.table.mu.Unlock()

		delete(u.table.caps, u.ref)
	})

	return nil
}
