/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/improvement"
	"github.com/AMD-AIG-AIMA/AVS/pkg/inference"
	"github.com/AMD-AIG-AIMA/AVS/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/AVS/pkg/queue"
	"github.com/AMD-AIG-AIMA/AVS/pkg/s3"
	"github.com/AMD-AIG-AIMA/AVS/pkg/tasks"
)

// VectorStore is the slice of the vector store the workers mutate through.
type VectorStore interface {
	Upsert(ctx context.Context, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error
	UpsertTx(ctx context.Context, tx *sqlx.Tx, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error
	Delete(ctx context.Context, info *v1.CollectionInfo, objectIds []string) error
	FindByIds(ctx context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error)
	FindBySessionIds(ctx context.Context, info *v1.CollectionInfo, sessionIds []string) ([]v1.Object, error)
	ListObjectIds(ctx context.Context, info *v1.CollectionInfo, afterId string, limit int) ([]string, error)
	LockObjects(ctx context.Context, info *v1.CollectionInfo, objectIds []string, fn func(tx *sqlx.Tx) error) error
	ApplyOptimization(ctx context.Context, info *v1.CollectionInfo, name string) error
}

// Workers hosts every queue actor of the worker process.
type Workers struct {
	meta      client.Interface
	cache     *cache.Cache
	vectors   VectorStore
	inference inference.Interface
	lifecycle *lifecycle.Manager
	tasks     *tasks.Service
	builder   *improvement.Builder
	artifacts s3.Interface

	deploySlots chan struct{}
}

func New(meta client.Interface, collectionCache *cache.Cache, vectors VectorStore,
	inferenceClient inference.Interface, manager *lifecycle.Manager,
	taskService *tasks.Service, artifacts s3.Interface) *Workers {
	return &Workers{
		meta:        meta,
		cache:       collectionCache,
		vectors:     vectors,
		inference:   inferenceClient,
		lifecycle:   manager,
		tasks:       taskService,
		builder:     improvement.NewBuilder(meta, collectionCache, vectors),
		artifacts:   artifacts,
		deploySlots: make(chan struct{}, config.GetMaxConcurrentDeploys()),
	}
}

// Register binds every actor to its queue.
func (w *Workers) Register(d *queue.Dispatcher) {
	d.Register(common.QueueUpsertion, w.actor(w.runUpsert))
	d.Register(common.QueueDeletion, w.actor(w.runDelete))
	d.Register(common.QueueReindex, w.actor(w.runReindex))
	d.Register(common.QueueImprovement, w.actor(w.runImprove))
	d.Register(common.QueueDeploy, w.actor(w.runDeploy))
	d.Register(common.QueueUndeploy, w.actor(w.runUndeploy))
	d.Register(common.QueueFineTune, w.actor(w.runFineTune))
}

type taskFn func(ctx context.Context, task *v1.Task) error

// actor adapts a task workflow into a queue handler. The workflow's outcome
// is recorded on the task, so the dispatcher never redelivers.
func (w *Workers) actor(fn taskFn) queue.Handler {
	return func(ctx context.Context, msg *queue.Message) error {
		w.runTask(ctx, msg, fn)
		return nil
	}
}

// runTask claims the task, runs the workflow and finalizes the status:
// DONE on success, CANCELED when the context was aborted, ERROR otherwise.
func (w *Workers) runTask(ctx context.Context, msg *queue.Message, fn taskFn) {
	task, err := w.meta.GetTask(ctx, msg.TaskId)
	if err != nil {
		klog.ErrorS(err, "dropping delivery for unknown task", "task", msg.TaskId)
		return
	}
	if err = w.meta.UpdateStatus(ctx, task.TaskId, v1.TaskProcessing); err != nil {
		// a redelivery of a task this process already claimed keeps going,
		// anything else (canceled, terminal) is a stale delivery
		if task.Status != v1.TaskProcessing {
			klog.Infof("skipping stale delivery of task %s in status %s", task.TaskId, task.Status)
			return
		}
	}
	err = fn(ctx, task)
	w.finalize(ctx, task, err)
}

func (w *Workers) finalize(ctx context.Context, task *v1.Task, err error) {
	// the handler context dies with the abort signal, finalize on a fresh one
	fctx := context.WithoutCancel(ctx)
	switch {
	case ctx.Err() != nil || avserrors.IsCanceled(err):
		if uerr := w.meta.UpdateStatus(fctx, task.TaskId, v1.TaskCanceled); uerr != nil && !avserrors.IsConflict(uerr) {
			klog.ErrorS(uerr, "failed to mark task canceled", "task", task.TaskId)
		}
	case err != nil:
		klog.ErrorS(err, "task failed", "task", task.TaskId, "kind", task.Kind)
		w.appendFailure(fctx, task.TaskId, "", err)
		if uerr := w.meta.UpdateStatus(fctx, task.TaskId, v1.TaskError); uerr != nil && !avserrors.IsConflict(uerr) {
			klog.ErrorS(uerr, "failed to mark task errored", "task", task.TaskId)
		}
	default:
		if uerr := w.meta.UpdateStatus(fctx, task.TaskId, v1.TaskDone); uerr != nil && !avserrors.IsConflict(uerr) {
			klog.ErrorS(uerr, "failed to mark task done", "task", task.TaskId)
		} else {
			klog.Infof("task %s (%s) done", task.TaskId, task.Kind)
		}
	}
}

func (w *Workers) appendFailure(ctx context.Context, taskId, objectId string, err error) {
	item := v1.FailedItem{ObjectId: objectId, Reason: err.Error()}
	if aerr := w.meta.AppendFailures(ctx, taskId, []v1.FailedItem{item}); aerr != nil {
		klog.ErrorS(aerr, "failed to record task failure", "task", taskId)
	}
}

// resolveRegular picks the target REGULAR collection: the explicit model id
// when given, else the blue pair of the namespace.
func (w *Workers) resolveRegular(modelId string, kind v1.CollectionKind) (*v1.CollectionInfo, error) {
	if modelId != "" {
		info, ok := w.cache.Get(modelId, kind)
		if !ok {
			return nil, avserrors.NewNotFound(avserrors.CollectionKindName, modelId)
		}
		return &info, nil
	}
	info := w.cache.GetBlue(kind)
	if info == nil {
		return nil, avserrors.NewNoBlueCollection(fmt.Sprintf(
			"no blue %s collection and no embedding_model_id given", kind))
	}
	return info, nil
}

// checkpoint observes cooperative cancellation between batches.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return avserrors.NewCanceled(err.Error())
	}
	return nil
}
