package taskapi

import "github.com/Keksclan/goRawrShaper/tasks"

// message marks the request and response types carried as JSON.
type message interface{ isTaskMessage() }

type ListTasksRequest struct {
	ProjectID string `json:"project_id"`
}

type ListTasksResponse struct {
	Tasks []tasks.Task `json:"tasks"`
}

type CreateTaskRequest struct {
	Task tasks.NewTask `json:"task"`
}

type UpdateTaskRequest struct {
	ID    string      `json:"id"`
	Patch tasks.Patch `json:"patch"`
}

// TaskResponse is returned by CreateTask and UpdateTask.
type TaskResponse struct {
	Task tasks.Task `json:"task"`
}

type DeleteTaskRequest struct {
	ID string `json:"id"`
}

type DeleteTaskResponse struct{}

// InvalidateProjectRequest drops cached task lists: one project, or all of
// them when All is set.
type InvalidateProjectRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	All       bool   `json:"all,omitempty"`
}

type InvalidateProjectResponse struct {
	Invalidated int `json:"invalidated"`
}

func (*ListTasksRequest) isTaskMessage()          {}
func (*ListTasksResponse) isTaskMessage()         {}
func (*CreateTaskRequest) isTaskMessage()         {}
func (*UpdateTaskRequest) isTaskMessage()         {}
func (*TaskResponse) isTaskMessage()              {}
func (*DeleteTaskRequest) isTaskMessage()         {}
func (*DeleteTaskResponse) isTaskMessage()        {}
func (*InvalidateProjectRequest) isTaskMessage()  {}
func (*InvalidateProjectResponse) isTaskMessage() {}
