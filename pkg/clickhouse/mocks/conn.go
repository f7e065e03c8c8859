package mocks

import (
	"context"
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// ErrNotMocked is returned by the driver.Conn methods the event sink never calls.
var ErrNotMocked = errors.New("mocks: method not mocked")

// MockConn is a driver.Conn whose Exec, Ping and Close calls go through testify's mock.
type MockConn struct {
	mock.Mock
}

var _ driver.Conn = (*MockConn)(nil)

func (m *MockConn) Exec(ctx context.Context, query string, args ...any) error {
	return m.Called(append([]any{ctx, query}, args...)...).Error(0)
}

func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}

func (m *MockConn) Contributors() []string { return nil }

func (m *MockConn) ServerVersion() (*driver.ServerVersion, error) { return nil, ErrNotMocked }

func (m *MockConn) Select(context.Context, any, string, ...any) error { return ErrNotMocked }

func (m *MockConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return nil, ErrNotMocked
}

func (m *MockConn) QueryRow(context.Context, string, ...any) driver.Row { return nil }

func (m *MockConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	return nil, ErrNotMocked
}

func (m *MockConn) AsyncInsert(context.Context, string, bool, ...any) error { return ErrNotMocked }

func (m *MockConn) Stats() driver.Stats { return driver.Stats{} }
