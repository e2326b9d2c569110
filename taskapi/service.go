// Package taskapi exposes the task store over gRPC as rawr.shaper.v1.Tasks.
// The service is registered from a hand-written [grpc.ServiceDesc] and its
// messages are plain Go structs encoded as JSON, so no protobuf code
// generation is needed.
package taskapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rawr.shaper.v1.Tasks"

// Full method names, for policy groups.
const (
	MethodListTasks         = "/" + ServiceName + "/ListTasks"
	MethodCreateTask        = "/" + ServiceName + "/CreateTask"
	MethodUpdateTask        = "/" + ServiceName + "/UpdateTask"
	MethodDeleteTask        = "/" + ServiceName + "/DeleteTask"
	MethodInvalidateProject = "/" + ServiceName + "/InvalidateProject"
)

// TasksServer is implemented by [Handler].
type TasksServer interface {
	ListTasks(context.Context, *ListTasksRequest) (*ListTasksResponse, error)
	CreateTask(context.Context, *CreateTaskRequest) (*TaskResponse, error)
	UpdateTask(context.Context, *UpdateTaskRequest) (*TaskResponse, error)
	DeleteTask(context.Context, *DeleteTaskRequest) (*DeleteTaskResponse, error)
	InvalidateProject(context.Context, *InvalidateProjectRequest) (*InvalidateProjectResponse, error)
}

// unaryMethod adapts a typed TasksServer method to grpc.MethodDesc.
func unaryMethod[Req any, Resp any](
	fullMethod string,
	call func(TasksServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TasksServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(srv.(TasksServer), ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// ServiceDesc describes rawr.shaper.v1.Tasks.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TasksServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTasks", Handler: unaryMethod(MethodListTasks, TasksServer.ListTasks)},
		{MethodName: "CreateTask", Handler: unaryMethod(MethodCreateTask, TasksServer.CreateTask)},
		{MethodName: "UpdateTask", Handler: unaryMethod(MethodUpdateTask, TasksServer.UpdateTask)},
		{MethodName: "DeleteTask", Handler: unaryMethod(MethodDeleteTask, TasksServer.DeleteTask)},
		{MethodName: "InvalidateProject", Handler: unaryMethod(MethodInvalidateProject, TasksServer.InvalidateProject)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rawr/shaper/v1/tasks.proto",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv TasksServer) {
	s.RegisterService(&ServiceDesc, srv)
}
