/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/plugin"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/backoff"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

// runUpsert embeds and writes the task's items into the target REGULAR
// collection in bounded batches. Per-item failures are recorded; the task
// succeeds when at least one item made it.
func (w *Workers) runUpsert(ctx context.Context, task *v1.Task) error {
	req := &v1.UpsertionTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed upsertion payload: %v", err))
	}
	if len(req.Items) == 0 {
		return nil
	}
	info, err := w.resolveRegular(req.EmbeddingModelId, v1.RegularKindOf(req.Namespace))
	if err != nil {
		return err
	}
	p, err := plugin.Get(info.EmbeddingModel.PluginName)
	if err != nil {
		return err
	}

	batchSize := config.GetUpsertionBatchSize()
	succeeded := 0
	failed := 0
	for start := 0; start < len(req.Items); start += batchSize {
		if err = checkpoint(ctx); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(req.Items) {
			end = len(req.Items)
		}
		ok, bad := w.upsertBatch(ctx, task, info, p, req.Items[start:end])
		succeeded += ok
		failed += bad
	}
	if succeeded == 0 && failed > 0 {
		return avserrors.NewInternalError(fmt.Sprintf("all %d items failed", failed))
	}
	klog.Infof("upsertion task %s wrote %d items, %d failed", task.TaskId, succeeded, failed)
	return nil
}

// upsertBatch embeds one batch and writes it with shrink_parts semantics.
// Returns the per-batch success and failure counts.
func (w *Workers) upsertBatch(ctx context.Context, task *v1.Task, info *v1.CollectionInfo,
	p plugin.Plugin, items []v1.UpsertionItem) (int, int) {
	inputs := make([]map[string]interface{}, 0, len(items))
	sources := make([]*v1.UpsertionItem, 0, len(items))
	failed := 0
	for i := range items {
		item := &items[i]
		input, err := p.BuildEmbeddingInput(item)
		if err != nil {
			w.appendFailure(ctx, task.TaskId, item.ObjectId, err)
			failed++
			continue
		}
		inputs = append(inputs, input)
		sources = append(sources, item)
	}
	if len(inputs) == 0 {
		return 0, failed
	}

	var vectors [][]float32
	err := backoff.RetryTransient(func() error {
		var ferr error
		vectors, ferr = w.inference.ForwardItems(ctx, p.Name(),
			info.EmbeddingModel.EmbeddingModelId, inputs)
		return ferr
	}, config.GetQueueRetryMaxElapsed(), config.GetQueueRetryMaxInterval())
	if err != nil {
		for _, item := range sources {
			w.appendFailure(ctx, task.TaskId, item.ObjectId, err)
		}
		return 0, failed + len(sources)
	}

	objects := make([]v1.Object, 0, len(sources))
	for i, item := range sources {
		objects = append(objects, v1.Object{
			ObjectId:    item.ObjectId,
			Payload:     item.Payload,
			StorageMeta: item.ItemInfo,
			Parts: []v1.ObjectPart{{
				PartId: fmt.Sprintf("%s_p0", item.ObjectId),
				Vector: vectors[i],
			}},
		})
	}
	err = backoff.RetryTransient(func() error {
		return w.vectors.Upsert(ctx, info, objects, true)
	}, config.GetQueueRetryMaxElapsed(), config.GetQueueRetryMaxInterval())
	if err != nil {
		for _, item := range sources {
			w.appendFailure(ctx, task.TaskId, item.ObjectId, err)
		}
		return 0, failed + len(sources)
	}
	return len(sources), failed
}

// runDelete removes the task's object ids from the target REGULAR
// collection in bounded batches.
func (w *Workers) runDelete(ctx context.Context, task *v1.Task) error {
	req := &v1.DeletionTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed deletion payload: %v", err))
	}
	if len(req.ObjectIds) == 0 {
		return nil
	}
	info, err := w.resolveRegular(req.EmbeddingModelId, v1.RegularKindOf(req.Namespace))
	if err != nil {
		return err
	}
	batchSize := config.GetUpsertionBatchSize()
	succeeded := 0
	failed := 0
	for start := 0; start < len(req.ObjectIds); start += batchSize {
		if err = checkpoint(ctx); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(req.ObjectIds) {
			end = len(req.ObjectIds)
		}
		batch := req.ObjectIds[start:end]
		err = backoff.RetryTransient(func() error {
			return w.vectors.Delete(ctx, info, batch)
		}, config.GetQueueRetryMaxElapsed(), config.GetQueueRetryMaxInterval())
		if err != nil {
			for _, id := range batch {
				w.appendFailure(ctx, task.TaskId, id, err)
			}
			failed += len(batch)
			continue
		}
		succeeded += len(batch)
	}
	if succeeded == 0 && failed > 0 {
		return avserrors.NewInternalError(fmt.Sprintf("all %d deletions failed", failed))
	}
	klog.Infof("deletion task %s removed %d objects, %d failed", task.TaskId, succeeded, failed)
	return nil
}
