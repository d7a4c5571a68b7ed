package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/erp/mikrosync/internal/infrastructure/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockRelayController is a mock implementation of RelayController
type MockRelayController struct {
	mock.Mock
}

func (m *MockRelayController) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRelayController) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRelayController) Status() scheduler.Status {
	args := m.Called()
	return args.Get(0).(scheduler.Status)
}

func (m *MockRelayController) History(limit int) []scheduler.CycleRecord {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]scheduler.CycleRecord)
}

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
