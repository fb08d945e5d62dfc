/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
)

const childWaitInterval = 2 * time.Second

// runReindex re-embeds the source REGULAR collection into the destination
// model's pair through child upsertion tasks, one per batch of source
// objects. Child failures accumulate on the parent instead of failing it.
func (w *Workers) runReindex(ctx context.Context, task *v1.Task) error {
	req := &v1.ReindexTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed reindex payload: %v", err))
	}
	sourceId := req.Source.EmbeddingModelId
	destId := req.Dest.EmbeddingModelId
	if sourceId == "" || destId == "" || sourceId == destId {
		return avserrors.NewBadRequest("reindex needs distinct source and dest models")
	}
	if err := w.awaitNoConflict(ctx, task, sourceId, destId, req.WaitOnConflict); err != nil {
		return err
	}
	sourceInfo, ok := w.cache.Get(sourceId, v1.KindRegular)
	if !ok {
		return avserrors.NewNotFound(avserrors.CollectionKindName, sourceId)
	}
	destModel, err := w.meta.GetModel(ctx, destId)
	if err != nil {
		return err
	}
	if err = w.ensureDeployed(ctx, destModel); err != nil {
		return err
	}
	destInfo, err := w.lifecycle.CreatePair(ctx, destModel, v1.NamespaceDefault)
	if err != nil {
		return err
	}
	if err = w.lifecycle.CreateIndex(ctx, destId, v1.NamespaceDefault); err != nil {
		return err
	}

	children, err := w.spawnChildren(ctx, task, &sourceInfo, destId)
	if err != nil {
		return err
	}
	anyFullyFailed, err := w.awaitChildren(ctx, task, children)
	if err != nil {
		return err
	}

	if req.DeployAsBlue {
		if anyFullyFailed {
			klog.Warningf("reindex %s: skipping blue promotion, a child batch fully failed", task.TaskId)
			return nil
		}
		if err = w.lifecycle.PromoteToBlue(ctx, destId, v1.NamespaceDefault); err != nil {
			return err
		}
		if err = w.retireSource(ctx, sourceId); err != nil {
			return err
		}
	}
	w.applyOptimizations(ctx, destInfo)
	return nil
}

// awaitNoConflict blocks (or fails) while another reindex touching the same
// models is processing.
func (w *Workers) awaitNoConflict(ctx context.Context, task *v1.Task, sourceId, destId string, wait bool) error {
	modelIds := []string{sourceId, destId}
	for {
		other, err := w.meta.FindProcessingReindex(ctx, modelIds, task.TaskId)
		if err != nil {
			return err
		}
		if other == nil {
			return nil
		}
		if !wait {
			return avserrors.NewTaskConflict(fmt.Sprintf(
				"reindex %s already processing models %v", other.TaskId, modelIds))
		}
		klog.Infof("reindex %s waiting on %s", task.TaskId, other.TaskId)
		select {
		case <-ctx.Done():
			return avserrors.NewCanceled(ctx.Err().Error())
		case <-time.After(config.GetReindexConflictWait()):
		}
	}
}

// spawnChildren scans the source collection in object-id order and submits
// one linked child upsertion task per batch.
func (w *Workers) spawnChildren(ctx context.Context, task *v1.Task, source *v1.CollectionInfo, destId string) ([]string, error) {
	batchSize := config.GetReindexBatchSize()
	var children []string
	afterId := ""
	for batch := 0; ; batch++ {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		ids, err := w.vectors.ListObjectIds(ctx, source, afterId, batchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return children, nil
		}
		afterId = ids[len(ids)-1]
		objects, err := w.vectors.FindByIds(ctx, source, ids)
		if err != nil {
			return nil, err
		}
		items := make([]v1.UpsertionItem, 0, len(objects))
		for _, object := range objects {
			// personalized copies are rebuilt by the improve pipeline,
			// only originals carry over
			if object.OriginalId != "" {
				continue
			}
			items = append(items, v1.UpsertionItem{
				ObjectId: object.ObjectId,
				Payload:  object.Payload,
				ItemInfo: object.StorageMeta,
			})
		}
		if len(items) == 0 {
			continue
		}
		childId := fmt.Sprintf("%s-b%d", task.TaskId, batch)
		child, err := w.tasks.Submit(ctx, v1.TaskUpsert, destId, childId, &v1.UpsertionTaskRequest{
			TaskId:           childId,
			EmbeddingModelId: destId,
			Items:            items,
		})
		if err != nil {
			return nil, err
		}
		if err = w.meta.LinkChild(ctx, task.TaskId, child.TaskId); err != nil {
			return nil, err
		}
		children = append(children, child.TaskId)
	}
}

// awaitChildren waits for every child to reach a terminal status and merges
// their failures into the parent. Reports whether any child fully failed.
func (w *Workers) awaitChildren(ctx context.Context, task *v1.Task, children []string) (bool, error) {
	anyFullyFailed := false
	for _, childId := range children {
		child, err := w.meta.WaitTask(ctx, childId, childWaitInterval)
		if err != nil {
			if ctx.Err() != nil {
				return false, avserrors.NewCanceled(ctx.Err().Error())
			}
			return false, err
		}
		if len(child.FailedItems) > 0 {
			if err = w.meta.AppendFailures(ctx, task.TaskId, child.FailedItems); err != nil {
				return false, err
			}
		}
		if child.Status == v1.TaskError {
			anyFullyFailed = true
		}
	}
	return anyFullyFailed, nil
}

// retireSource undeploys the old model and removes its collection pair.
func (w *Workers) retireSource(ctx context.Context, sourceId string) error {
	if _, err := w.tasks.Submit(ctx, v1.TaskUndeploy, sourceId, "", &v1.DeploymentTaskRequest{
		EmbeddingModelId: sourceId,
	}); err != nil {
		return err
	}
	if err := w.lifecycle.DeletePair(ctx, sourceId, v1.NamespaceDefault); err != nil {
		return avserrors.IgnoreFound(err)
	}
	return nil
}

// applyOptimizations runs the named post-hoc passes on the fresh pair and
// records them, so repeated reindexes skip the work.
func (w *Workers) applyOptimizations(ctx context.Context, info *v1.CollectionInfo) {
	applied := map[string]bool{}
	for _, name := range info.AppliedOptimizations {
		applied[name] = true
	}
	var names []string
	for _, name := range vectorstore.Optimizations {
		if applied[name] {
			continue
		}
		if err := w.vectors.ApplyOptimization(ctx, info, name); err != nil {
			klog.ErrorS(err, "optimization failed", "collection", info.CollectionId, "name", name)
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return
	}
	all := append(append([]string{}, info.AppliedOptimizations...), names...)
	if err := w.meta.SetAppliedOptimizations(ctx, info.CollectionId, info.Kind, all); err != nil {
		klog.ErrorS(err, "failed to record optimizations", "collection", info.CollectionId)
		return
	}
	w.cache.Invalidate(ctx)
}
