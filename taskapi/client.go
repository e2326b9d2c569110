package taskapi

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls rawr.shaper.v1.Tasks.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListTasks(ctx context.Context, req *ListTasksRequest, opts ...grpc.CallOption) (*ListTasksResponse, error) {
	out := new(ListTasksResponse)
	if err := c.cc.Invoke(ctx, MethodListTasks, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, req *CreateTaskRequest, opts ...grpc.CallOption) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.cc.Invoke(ctx, MethodCreateTask, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateTask(ctx context.Context, req *UpdateTaskRequest, opts ...grpc.CallOption) (*TaskResponse, error) {
	out := new(TaskResponse)
	if err := c.cc.Invoke(ctx, MethodUpdateTask, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteTask(ctx context.Context, req *DeleteTaskRequest, opts ...grpc.CallOption) (*DeleteTaskResponse, error) {
	out := new(DeleteTaskResponse)
	if err := c.cc.Invoke(ctx, MethodDeleteTask, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InvalidateProject(ctx context.Context, req *InvalidateProjectRequest, opts ...grpc.CallOption) (*InvalidateProjectResponse, error) {
	out := new(InvalidateProjectResponse)
	if err := c.cc.Invoke(ctx, MethodInvalidateProject, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
