package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docchat/internal/vectorstore"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockStore) SearchChunks(ctx context.Context, tenant string, query []float32, k int) ([]vectorstore.Match, error) {
	args := m.Called(ctx, tenant, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.Match), args.Error(1)
}

func (m *MockStore) ListSources(ctx context.Context, tenant string) ([]vectorstore.SourceInfo, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SourceInfo), args.Error(1)
}

func (m *MockStore) ListAllSources(ctx context.Context) ([]vectorstore.SourceInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.SourceInfo), args.Error(1)
}

func (m *MockStore) DeleteChunks(ctx context.Context, filter vectorstore.ChunkFilter) error {
	args := m.Called(ctx, filter)
	return args.Error(0)
}

func (m *MockStore) DeleteAllChunks(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) AddTurn(ctx context.Context, turn vectorstore.Turn, limit int) error {
	args := m.Called(ctx, turn, limit)
	return args.Error(0)
}

func (m *MockStore) SearchTurns(ctx context.Context, tenant string, query []float32, k int) ([]vectorstore.Turn, error) {
	args := m.Called(ctx, tenant, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.Turn), args.Error(1)
}

func (m *MockStore) ListTurns(ctx context.Context, tenant string) ([]vectorstore.Turn, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorstore.Turn), args.Error(1)
}

func (m *MockStore) DeleteTurns(ctx context.Context, tenant string) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockStore) DeleteAllTurns(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
