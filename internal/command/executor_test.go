package command

import (
	"context"
	"testing"

	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEngine is a mock implementation of Engine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) DistributeIdempotent(ctx context.Context, caller model.Caller, key string) (*service.DistributionResult, bool, error) {
	args := m.Called(ctx, caller, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*service.DistributionResult), args.Bool(1), args.Error(2)
}

func (m *MockEngine) Submit(ctx context.Context, payload string) (*model.Item, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Item), args.Error(1)
}

func (m *MockEngine) ReportItem(ctx context.Context, itemID string) (int, error) {
	args := m.Called(ctx, itemID)
	return args.Int(0), args.Error(1)
}

func (m *MockEngine) ResetAll(ctx context.Context, caller model.Caller) (int64, error) {
	args := m.Called(ctx, caller)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngine) ResetOne(ctx context.Context, caller model.Caller, target string) (int64, error) {
	args := m.Called(ctx, caller, target)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngine) SetAdminRole(ctx context.Context, caller model.Caller, roleID string) (*model.TenantAuthConfig, error) {
	args := m.Called(ctx, caller, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TenantAuthConfig), args.Error(1)
}

func (m *MockEngine) UsageStatus(ctx context.Context, caller model.Caller) (*service.UsageStatus, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsageStatus), args.Error(1)
}

var alice = model.Caller{TenantID: "guild-1", RequesterID: "alice", Roles: []string{"Level 10"}}

func TestExecutor_GetLink(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, zap.NewNop())
	ctx := context.Background()

	result := &service.DistributionResult{
		Item:      &model.Item{ID: "i-1", Payload: "https://example.com/x"},
		Consumed:  1,
		Allowance: 4,
		Remaining: 3,
	}
	engine.On("DistributeIdempotent", ctx, alice, "req-9").Return(result, true, nil)

	reply, err := exec.Execute(ctx, alice, "!getlink", "req-9")
	require.NoError(t, err)
	assert.Equal(t, GetLink, reply.Command)
	assert.Contains(t, reply.Message, "https://example.com/x")
	assert.Same(t, result, reply.Data)
	assert.True(t, reply.Replayed)
	engine.AssertExpectations(t)
}

func TestExecutor_PropagatesEngineErrors(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, zap.NewNop())
	ctx := context.Background()

	engine.On("DistributeIdempotent", ctx, alice, "").
		Return(nil, false, dserrors.QuotaExceeded("guild-1", "alice", 4, 4))
	engine.On("ResetAll", ctx, alice).
		Return(int64(0), dserrors.Unauthorized("guild-1", "alice", "reset"))

	_, err := exec.Execute(ctx, alice, "!getlink", "")
	assert.ErrorIs(t, err, dserrors.ErrQuotaExceeded)

	_, err = exec.Execute(ctx, alice, "!reset", "")
	assert.ErrorIs(t, err, dserrors.ErrUnauthorized)
}

func TestExecutor_ItemCommands(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, zap.NewNop())
	ctx := context.Background()

	engine.On("Submit", ctx, "https://example.com/y").
		Return(&model.Item{ID: "i-2", Payload: "https://example.com/y"}, nil)
	engine.On("ReportItem", ctx, "i-2").Return(3, nil)

	reply, err := exec.Execute(ctx, alice, "!addlink https://example.com/y", "")
	require.NoError(t, err)
	assert.Equal(t, "Link https://example.com/y added with ID i-2.", reply.Message)

	reply, err = exec.Execute(ctx, alice, "!reportlink i-2", "")
	require.NoError(t, err)
	assert.Equal(t, "Link i-2 has been reported.", reply.Message)
	assert.Equal(t, 3, reply.Data.(map[string]interface{})["report_count"])

	// Argument validation happens before the engine is reached
	_, err = exec.Execute(ctx, alice, "!addlink a b", "")
	assert.ErrorIs(t, err, dserrors.ErrInvalidInput)
	engine.AssertNumberOfCalls(t, "Submit", 1)
}

func TestExecutor_AdminCommands(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, zap.NewNop())
	ctx := context.Background()
	owner := model.Caller{TenantID: "guild-1", RequesterID: "owner", PlatformAdmin: true}

	engine.On("ResetAll", ctx, owner).Return(int64(12), nil)
	engine.On("ResetOne", ctx, owner, "alice").Return(int64(1), nil)
	engine.On("SetAdminRole", ctx, owner, "role-mods").
		Return(&model.TenantAuthConfig{TenantID: "guild-1", AdminRoleID: "role-mods"}, nil)

	reply, err := exec.Execute(ctx, owner, "!reset", "")
	require.NoError(t, err)
	assert.Equal(t, "Link limits have been reset for everyone.", reply.Message)
	assert.Equal(t, int64(12), reply.Data.(map[string]interface{})["records_reset"])

	reply, err = exec.Execute(ctx, owner, "!resetuser alice", "")
	require.NoError(t, err)
	assert.Equal(t, ResetUser, reply.Command)
	assert.Equal(t, int64(1), reply.Data.(map[string]interface{})["records_reset"])

	reply, err = exec.Execute(ctx, owner, "!setadminrole role-mods", "")
	require.NoError(t, err)
	assert.Equal(t, "Admin role set to role-mods.", reply.Message)

	engine.AssertExpectations(t)
}

func TestExecutor_MyLinks(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, zap.NewNop())
	ctx := context.Background()

	status := &service.UsageStatus{
		UsageRecord: model.UsageRecord{TenantID: "guild-1", RequesterID: "alice", ConsumedCount: 2},
		Allowance:   4,
		Remaining:   2,
	}
	engine.On("UsageStatus", ctx, alice).Return(status, nil)

	reply, err := exec.Execute(ctx, alice, "!mylinks", "")
	require.NoError(t, err)
	assert.Equal(t, "You have used 2 of 4 links this week.", reply.Message)
}
