package taskapi

import (
	"context"
	"errors"

	"github.com/Keksclan/goRawrShaper/contextx"
	"github.com/Keksclan/goRawrShaper/tasks"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Handler serves TasksServer from a tasks.Service.
type Handler struct {
	svc *tasks.Service
}

// NewHandler creates a Handler.
func NewHandler(svc *tasks.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListTasks(ctx context.Context, req *ListTasksRequest) (*ListTasksResponse, error) {
	ts, err := h.svc.List(ctx, req.ProjectID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	if ts == nil {
		ts = []tasks.Task{}
	}
	return &ListTasksResponse{Tasks: ts}, nil
}

func (h *Handler) CreateTask(ctx context.Context, req *CreateTaskRequest) (*TaskResponse, error) {
	t, err := h.svc.Create(ctx, req.Task)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &TaskResponse{Task: t}, nil
}

func (h *Handler) UpdateTask(ctx context.Context, req *UpdateTaskRequest) (*TaskResponse, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	t, err := h.svc.Update(ctx, req.ID, req.Patch)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &TaskResponse{Task: t}, nil
}

func (h *Handler) DeleteTask(ctx context.Context, req *DeleteTaskRequest) (*DeleteTaskResponse, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := h.svc.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(ctx, err)
	}
	return &DeleteTaskResponse{}, nil
}

func (h *Handler) InvalidateProject(ctx context.Context, req *InvalidateProjectRequest) (*InvalidateProjectResponse, error) {
	switch {
	case req.All:
		return &InvalidateProjectResponse{Invalidated: h.svc.InvalidateAll(ctx)}, nil
	case req.ProjectID == "":
		return nil, status.Error(codes.InvalidArgument, "project_id or all is required")
	}
	h.svc.InvalidateProject(ctx, req.ProjectID)
	contextx.Logger(ctx).Info("project cache invalidated", zap.String("project_id", req.ProjectID))
	return &InvalidateProjectResponse{Invalidated: 1}, nil
}

// toStatus maps service errors onto gRPC codes. Unexpected errors are
// logged and reported without detail.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		return status.Error(codes.NotFound, "task not found")
	case errors.Is(err, tasks.ErrInvalidTask):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	contextx.Logger(ctx).Error("task request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

var _ TasksServer = (*Handler)(nil)
