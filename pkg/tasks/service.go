/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// Broker is the queue surface the task service sends through.
type Broker interface {
	Send(ctx context.Context, queue, taskId string) (string, error)
	Abort(ctx context.Context, brokerId string) error
}

// TaskStore is the slice of the metadata store the service writes through.
type TaskStore interface {
	CreateTask(ctx context.Context, task *v1.Task) (*v1.Task, bool, error)
	GetTask(ctx context.Context, taskId string) (*v1.Task, error)
	ListTasks(ctx context.Context, kind v1.TaskKind, status v1.TaskStatus, offset, limit int) ([]v1.Task, int64, error)
	UpdateStatus(ctx context.Context, taskId string, newStatus v1.TaskStatus) error
	RestartTask(ctx context.Context, taskId string) error
	SetBrokerId(ctx context.Context, taskId, brokerId string) error
}

// QueueFor maps a task kind to its worker queue.
func QueueFor(kind v1.TaskKind) (string, error) {
	switch kind {
	case v1.TaskUpsert:
		return common.QueueUpsertion, nil
	case v1.TaskDelete:
		return common.QueueDeletion, nil
	case v1.TaskReindex:
		return common.QueueReindex, nil
	case v1.TaskImprove:
		return common.QueueImprovement, nil
	case v1.TaskDeploy:
		return common.QueueDeploy, nil
	case v1.TaskUndeploy:
		return common.QueueUndeploy, nil
	case v1.TaskFineTune:
		return common.QueueFineTune, nil
	}
	return "", avserrors.NewBadRequest(fmt.Sprintf("unknown task kind %q", kind))
}

// Service is the task intake: it persists tasks idempotently and hands them
// to the queue dispatcher.
type Service struct {
	store  TaskStore
	broker Broker
}

func NewService(store TaskStore, broker Broker) *Service {
	return &Service{store: store, broker: broker}
}

// Submit creates the task and enqueues it. Re-submitting an existing task id
// returns the stored task without a second enqueue.
func (s *Service) Submit(ctx context.Context, kind v1.TaskKind, modelId, taskId string, payload interface{}) (*v1.Task, error) {
	queueName, err := QueueFor(kind)
	if err != nil {
		return nil, err
	}
	if taskId == "" {
		taskId = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, avserrors.NewBadRequest(fmt.Sprintf("unencodable task payload: %v", err))
	}
	task := &v1.Task{
		TaskId:           taskId,
		Kind:             kind,
		EmbeddingModelId: modelId,
		Payload:          data,
	}
	stored, created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	if !created {
		klog.Infof("task %s already exists in status %s, skipping enqueue", taskId, stored.Status)
		return stored, nil
	}
	return s.send(ctx, stored, queueName)
}

func (s *Service) send(ctx context.Context, task *v1.Task, queueName string) (*v1.Task, error) {
	brokerId, err := s.broker.Send(ctx, queueName, task.TaskId)
	if err != nil {
		return nil, err
	}
	if err = s.store.SetBrokerId(ctx, task.TaskId, brokerId); err != nil {
		return nil, err
	}
	task.BrokerId = brokerId
	return task, nil
}

func (s *Service) Get(ctx context.Context, taskId string) (*v1.Task, error) {
	return s.store.GetTask(ctx, taskId)
}

func (s *Service) List(ctx context.Context, kind v1.TaskKind, status v1.TaskStatus, offset, limit int) (*v1.ListTasksResponse, error) {
	if limit <= 0 {
		limit = common.DefaultQueryLimit
	}
	items, total, err := s.store.ListTasks(ctx, kind, status, offset, limit)
	if err != nil {
		return nil, err
	}
	return &v1.ListTasksResponse{Tasks: items, Total: total}, nil
}

// Restart resets the task to PENDING and enqueues a fresh delivery. Only
// terminal or still-pending tasks can be restarted.
func (s *Service) Restart(ctx context.Context, taskId string) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskId)
	if err != nil {
		return nil, err
	}
	queueName, err := QueueFor(task.Kind)
	if err != nil {
		return nil, err
	}
	if err = s.store.RestartTask(ctx, taskId); err != nil {
		return nil, err
	}
	return s.send(ctx, task, queueName)
}

// Cancel aborts the in-flight delivery and moves the task to CANCELED.
func (s *Service) Cancel(ctx context.Context, taskId string) (*v1.Task, error) {
	task, err := s.store.GetTask(ctx, taskId)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, avserrors.NewTaskRefused(
			fmt.Sprintf("task %s in status %s cannot be canceled", taskId, task.Status))
	}
	if err = s.broker.Abort(ctx, task.BrokerId); err != nil {
		klog.ErrorS(err, "failed to signal abort", "task", taskId, "broker", task.BrokerId)
	}
	if err = s.store.UpdateStatus(ctx, taskId, v1.TaskCanceled); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, taskId)
}
