package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Port reads recent catalog activity.
type Port interface {
	Recent(ctx context.Context, limit int) (RecentResponse, error)
}

type adapter struct {
	container mono.ServiceContainer
}

// NewAdapter wraps the audit module's ServiceContainer.
func NewAdapter(container mono.ServiceContainer) Port {
	if container == nil {
		panic("audit adapter requires non-nil ServiceContainer")
	}
	return &adapter{container: container}
}

func (a *adapter) Recent(ctx context.Context, limit int) (RecentResponse, error) {
	var resp RecentResponse
	if err := helper.CallRequestReplyService(
		ctx, a.container, ServiceRecent, json.Marshal, json.Unmarshal, &RecentRequest{Limit: limit}, &resp,
	); err != nil {
		return RecentResponse{}, fmt.Errorf("%s service call failed: %w", ServiceRecent, err)
	}
	return resp, nil
}
