package services_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
)

// Mocks shared by the service tests.

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*entities.Event) ([]*entities.Event, error) {
	args := m.Called(ctx, events)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Tests may stub the return with a function of the inserted rows, e.g.
	// to echo the batch back or report a partial insert.
	if fn, ok := args.Get(0).(func(context.Context, []*entities.Event) []*entities.Event); ok {
		return fn(ctx, events), args.Error(1)
	}
	return args.Get(0).([]*entities.Event), args.Error(1)
}

func (m *MockEventRepository) List(ctx context.Context, projectID string, filter repositories.EventFilter) (*entities.EventPage, error) {
	args := m.Called(ctx, projectID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.EventPage), args.Error(1)
}

func (m *MockEventRepository) DaysWithEvents(ctx context.Context, projectID string, from, to *time.Time) ([]entities.Day, error) {
	args := m.Called(ctx, projectID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Day), args.Error(1)
}

func (m *MockEventRepository) RealtimeSnapshot(ctx context.Context, projectID string, since time.Time) (*entities.RealtimeSnapshot, error) {
	args := m.Called(ctx, projectID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.RealtimeSnapshot), args.Error(1)
}

func (m *MockEventRepository) CountStepVisitors(ctx context.Context, projectID, funnelID string, from, to *time.Time) (map[string]int64, error) {
	args := m.Called(ctx, projectID, funnelID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

type MockFunnelRepository struct {
	mock.Mock
}

func (m *MockFunnelRepository) GetByID(ctx context.Context, projectID, funnelID string) (*entities.Funnel, error) {
	args := m.Called(ctx, projectID, funnelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Funnel), args.Error(1)
}

type MockRollupRepository struct {
	mock.Mock
}

func (m *MockRollupRepository) ReplaceDay(ctx context.Context, projectID string, day entities.Day) error {
	args := m.Called(ctx, projectID, day)
	return args.Error(0)
}

func (m *MockRollupRepository) OverviewRange(ctx context.Context, projectID string, granularity repositories.Granularity, from, to *time.Time) ([]entities.OverviewPoint, error) {
	args := m.Called(ctx, projectID, granularity, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.OverviewPoint), args.Error(1)
}

func (m *MockRollupRepository) PageRange(ctx context.Context, projectID string, filter repositories.PageFilter, from, to *time.Time) ([]entities.PageStats, error) {
	args := m.Called(ctx, projectID, filter, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.PageStats), args.Error(1)
}
