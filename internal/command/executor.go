package command

import (
	"context"
	"fmt"

	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/model"
	"github.com/Dominus-Proxius/Dominum-Dispenser/internal/service"
	"go.uber.org/zap"
)

// Engine is the subset of service.Engine the commands drive
type Engine interface {
	DistributeIdempotent(ctx context.Context, caller model.Caller, idempotencyKey string) (*service.DistributionResult, bool, error)
	Submit(ctx context.Context, payload string) (*model.Item, error)
	ReportItem(ctx context.Context, itemID string) (int, error)
	ResetAll(ctx context.Context, caller model.Caller) (int64, error)
	ResetOne(ctx context.Context, caller model.Caller, targetRequesterID string) (int64, error)
	SetAdminRole(ctx context.Context, caller model.Caller, roleID string) (*model.TenantAuthConfig, error)
	UsageStatus(ctx context.Context, caller model.Caller) (*service.UsageStatus, error)
}

// Reply is the outcome of a command, ready to be posted back to the chat
type Reply struct {
	Command  Name        `json:"command"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Replayed bool        `json:"replayed,omitempty"`
}

// Executor runs decoded commands on behalf of a caller
type Executor struct {
	engine Engine
	logger *zap.Logger
}

// NewExecutor creates a new executor
func NewExecutor(engine Engine, logger *zap.Logger) *Executor {
	return &Executor{
		engine: engine,
		logger: logger,
	}
}

// Execute parses text and runs it. idempotencyKey only applies to !getlink
// and may be empty.
func (e *Executor) Execute(ctx context.Context, caller model.Caller, text, idempotencyKey string) (*Reply, error) {
	cmd, err := Parse(text)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Executing command",
		zap.String("tenant_id", caller.TenantID),
		zap.String("requester_id", caller.RequesterID),
		zap.String("command", string(cmd.Name)))

	switch cmd.Name {
	case GetLink:
		result, replayed, err := e.engine.DistributeIdempotent(ctx, caller, idempotencyKey)
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command:  cmd.Name,
			Message:  fmt.Sprintf("Here's your link! %s", result.Item.Payload),
			Data:     result,
			Replayed: replayed,
		}, nil

	case AddLink:
		item, err := e.engine.Submit(ctx, cmd.Arg())
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: fmt.Sprintf("Link %s added with ID %s.", item.Payload, item.ID),
			Data:    item,
		}, nil

	case ReportLink:
		count, err := e.engine.ReportItem(ctx, cmd.Arg())
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: fmt.Sprintf("Link %s has been reported.", cmd.Arg()),
			Data:    map[string]interface{}{"item_id": cmd.Arg(), "report_count": count},
		}, nil

	case Reset:
		n, err := e.engine.ResetAll(ctx, caller)
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: "Link limits have been reset for everyone.",
			Data:    map[string]interface{}{"records_reset": n},
		}, nil

	case ResetUser:
		n, err := e.engine.ResetOne(ctx, caller, cmd.Arg())
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: fmt.Sprintf("Link limit has been reset for %s.", cmd.Arg()),
			Data:    map[string]interface{}{"records_reset": n},
		}, nil

	case SetAdminRole:
		cfg, err := e.engine.SetAdminRole(ctx, caller, cmd.Arg())
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: fmt.Sprintf("Admin role set to %s.", cfg.AdminRoleID),
			Data:    cfg,
		}, nil

	case MyLinks:
		status, err := e.engine.UsageStatus(ctx, caller)
		if err != nil {
			return nil, err
		}
		return &Reply{
			Command: cmd.Name,
			Message: fmt.Sprintf("You have used %d of %d links this week.", status.ConsumedCount, status.Allowance),
			Data:    status,
		}, nil
	}

	// Parse only returns known names
	return nil, fmt.Errorf("unhandled command %q", cmd.Name)
}
