/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
)

// Interface is the metadata-store surface consumed by the cache, the
// lifecycle manager, the clickstream store and the workers. Tests substitute
// fakes for it.
type Interface interface {
	Migrate() error
	Close()

	// embedding models
	GetModel(ctx context.Context, modelId string) (*v1.EmbeddingModel, error)
	ListModels(ctx context.Context) ([]v1.EmbeddingModel, error)
	UpsertModel(ctx context.Context, model *v1.EmbeddingModel) error
	DeleteModel(ctx context.Context, modelId string) error

	// collections and the blue pointer
	ListCollections(ctx context.Context) ([]*CollectionRow, error)
	GetCollection(ctx context.Context, collectionId string, kind v1.CollectionKind) (*CollectionRow, error)
	InsertCollection(ctx context.Context, collectionId string, kind v1.CollectionKind, modelId string) error
	DeleteCollection(ctx context.Context, collectionId string, kind v1.CollectionKind) error
	MarkIndexCreated(ctx context.Context, collectionId string, kind v1.CollectionKind) error
	SetAppliedOptimizations(ctx context.Context, collectionId string, kind v1.CollectionKind, names []string) error
	GetBluePointer(ctx context.Context, namespace string) (*BluePointerRow, error)
	SetBluePointer(ctx context.Context, namespace, regularId, queryId string) error
	ClearBluePointer(ctx context.Context, namespace, regularId string) error

	// tasks
	CreateTask(ctx context.Context, task *v1.Task) (*v1.Task, bool, error)
	GetTask(ctx context.Context, taskId string) (*v1.Task, error)
	ListTasks(ctx context.Context, kind v1.TaskKind, status v1.TaskStatus, offset, limit int) ([]v1.Task, int64, error)
	ListChildren(ctx context.Context, parentId string) ([]*TaskRow, error)
	UpdateStatus(ctx context.Context, taskId string, newStatus v1.TaskStatus) error
	RestartTask(ctx context.Context, taskId string) error
	SetBrokerId(ctx context.Context, taskId, brokerId string) error
	LinkChild(ctx context.Context, parentId, childId string) error
	AppendFailures(ctx context.Context, taskId string, items []v1.FailedItem) error
	FindProcessingReindex(ctx context.Context, modelIds []string, selfId string) (*v1.Task, error)
	WaitTask(ctx context.Context, taskId string, interval time.Duration) (*v1.Task, error)

	// clickstream
	GetSession(ctx context.Context, sessionId string) (*SessionRow, error)
	InsertSession(ctx context.Context, session *v1.Session) error
	MarkSessionForImprovement(ctx context.Context, sessionId string) error
	ListBatchSessions(ctx context.Context, batchId string, afterNumber int64, limit int) ([]*SessionRow, error)
	ListImprovementSessions(ctx context.Context, limit int) ([]*SessionRow, error)
	ClearImprovementFlags(ctx context.Context, sessionIds []string) error
	InsertEvents(ctx context.Context, sessionId string, events []v1.SessionEvent) error
	ListSessionEvents(ctx context.Context, sessionId string, limit int) ([]*EventRow, error)
	GetBatch(ctx context.Context, batchId string) (*BatchRow, error)
	EnsureActiveBatch(ctx context.Context) (*BatchRow, error)
	NextSessionNumber(ctx context.Context, batchId string) (int64, error)
	ReleaseBatch(ctx context.Context, releaseId string) (*BatchRow, error)
}

var _ Interface = (*Client)(nil)
