package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Service names registered by the database module.
const (
	ServiceStatus = "status"
	ServiceReset  = "reset"
)

// StatusRequest is the request for the status service.
type StatusRequest struct{}

// ResetRequest is the request for the reset service.
type ResetRequest struct{}

// ResetResponse reports the outcome of an operator reset.
type ResetResponse struct {
	Previous State  `json:"previous"`
	State    State  `json:"state"`
	Message  string `json:"message"`
}

// Port is the database module's interface for dependent modules.
type Port interface {
	Status(ctx context.Context) (Status, error)
	Reset(ctx context.Context) (ResetResponse, error)
}

type adapter struct {
	container mono.ServiceContainer
}

// NewAdapter wraps the database module's ServiceContainer.
func NewAdapter(container mono.ServiceContainer) Port {
	if container == nil {
		panic("database adapter requires non-nil ServiceContainer")
	}
	return &adapter{container: container}
}

func (a *adapter) Status(ctx context.Context) (Status, error) {
	var resp Status
	if err := helper.CallRequestReplyService(
		ctx, a.container, ServiceStatus, json.Marshal, json.Unmarshal, &StatusRequest{}, &resp,
	); err != nil {
		return Status{}, fmt.Errorf("%s service call failed: %w", ServiceStatus, err)
	}
	return resp, nil
}

func (a *adapter) Reset(ctx context.Context) (ResetResponse, error) {
	var resp ResetResponse
	if err := helper.CallRequestReplyService(
		ctx, a.container, ServiceReset, json.Marshal, json.Unmarshal, &ResetRequest{}, &resp,
	); err != nil {
		return ResetResponse{}, fmt.Errorf("%s service call failed: %w", ServiceReset, err)
	}
	return resp, nil
}

// Local adapts a Manager to Port without going through the service container.
type Local struct {
	Manager *Manager
}

var _ Port = Local{}

func (l Local) Status(_ context.Context) (Status, error) {
	return l.Manager.Status(), nil
}

func (l Local) Reset(ctx context.Context) (ResetResponse, error) {
	previous := l.Manager.State()
	state := l.Manager.Reset(ctx)
	return ResetResponse{Previous: previous, State: state, Message: state.StatusMessage()}, nil
}
