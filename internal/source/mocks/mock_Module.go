// Package mocks provides test doubles for source modules.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	source "github.com/sells-group/ingest-cli/internal/source"
)

// MockModule is a mock type for the Module interface.
type MockModule struct {
	mock.Mock
}

// Key provides a mock function with given fields:
func (_m *MockModule) Key() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Key")
	}
	return ret.String(0)
}

// DisplayName provides a mock function with given fields:
func (_m *MockModule) DisplayName() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for DisplayName")
	}
	return ret.String(0)
}

// Discover provides a mock function with given fields: ctx, env
func (_m *MockModule) Discover(ctx context.Context, env source.Env) ([]source.DiscoveredPage, error) {
	ret := _m.Called(ctx, env)

	if len(ret) == 0 {
		panic("no return value specified for Discover")
	}

	var r0 []source.DiscoveredPage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, source.Env) ([]source.DiscoveredPage, error)); ok {
		return rf(ctx, env)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]source.DiscoveredPage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Extract provides a mock function with given fields: ctx, env, page
func (_m *MockModule) Extract(ctx context.Context, env source.Env, page source.DiscoveredPage) ([]source.ExtractedCandidate, error) {
	ret := _m.Called(ctx, env, page)

	if len(ret) == 0 {
		panic("no return value specified for Extract")
	}

	var r0 []source.ExtractedCandidate
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, source.Env, source.DiscoveredPage) ([]source.ExtractedCandidate, error)); ok {
		return rf(ctx, env, page)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]source.ExtractedCandidate)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// HealthCheck provides a mock function with given fields: ctx, env
func (_m *MockModule) HealthCheck(ctx context.Context, env source.Env) (source.HealthCheckResult, error) {
	ret := _m.Called(ctx, env)

	if len(ret) == 0 {
		panic("no return value specified for HealthCheck")
	}

	var r0 source.HealthCheckResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, source.Env) (source.HealthCheckResult, error)); ok {
		return rf(ctx, env)
	}
	r0 = ret.Get(0).(source.HealthCheckResult)
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockModule creates a new instance of MockModule. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockModule(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockModule {
	m := &MockModule{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
