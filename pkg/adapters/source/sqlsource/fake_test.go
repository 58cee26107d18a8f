package sqlsource

import (
	"context"
	"errors"
	"sync"

	"github.com/ekaya-inc/opd-explorer/pkg/adapters/source"
	"github.com/ekaya-inc/opd-explorer/pkg/models"
)

type recordedQuery struct {
	stmt string
	args []any
}

// fakePool answers queries from a canned table and records what it ran.
type fakePool struct {
	mu      sync.Mutex
	driver  string
	result  func(stmt string) *models.Table
	queries []recordedQuery
	pingErr error
	closed  bool
}

func (f *fakePool) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakePool) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePool) GetType() string { return f.driver }

func (f *fakePool) Query(ctx context.Context, stmt string, args []any) (*models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("pool closed")
	}
	f.queries = append(f.queries, recordedQuery{stmt: stmt, args: args})
	if f.result == nil {
		return models.NewTable(nil), nil
	}
	return f.result(stmt), nil
}

func (f *fakePool) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener hands out fakePools and counts how many it created.
type fakeOpener struct {
	mu      sync.Mutex
	created []*fakePool
	next    func(conn source.SQLConnection) *fakePool
}

func (o *fakeOpener) open(ctx context.Context, conn source.SQLConnection, cfg ConnectionManagerConfig) (PoolConnector, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePool{driver: conn.Driver}
	if o.next != nil {
		p = o.next(conn)
	}
	o.created = append(o.created, p)
	return p, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.created)
}
