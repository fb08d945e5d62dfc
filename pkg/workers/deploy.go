/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

// runDeploy makes the model's inference endpoints ready: artifacts are
// downloaded into the shared model repository and readiness is polled until
// the deadline.
func (w *Workers) runDeploy(ctx context.Context, task *v1.Task) error {
	req := &v1.DeploymentTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed deployment payload: %v", err))
	}
	model, err := w.meta.GetModel(ctx, req.EmbeddingModelId)
	if err != nil {
		return err
	}
	return w.ensureDeployed(ctx, model)
}

// ensureDeployed is shared with the reindex workflow. Deploys are bounded by
// a fixed slot count; a full worker refuses instead of queueing unbounded
// artifact downloads.
func (w *Workers) ensureDeployed(ctx context.Context, model *v1.EmbeddingModel) error {
	ready, err := w.inference.IsModelReady(ctx, model.PluginName, model.EmbeddingModelId)
	if err != nil {
		return err
	}
	if ready {
		return nil
	}
	select {
	case w.deploySlots <- struct{}{}:
	default:
		return avserrors.NewCapacityExceeded(fmt.Sprintf(
			"%d deployments already in flight", cap(w.deploySlots)))
	}
	defer func() { <-w.deploySlots }()
	return w.deployLocked(ctx, model)
}

func (w *Workers) deployLocked(ctx context.Context, model *v1.EmbeddingModel) error {
	root := config.GetModelRepositoryRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	lock := flock.New(modelLockPath(root, model.EmbeddingModelId))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			klog.ErrorS(err, "failed to release model lock", "model", model.EmbeddingModelId)
		}
	}()

	if err := w.stageArtifacts(ctx, model, root); err != nil {
		return err
	}
	return w.awaitReady(ctx, model)
}

// stageArtifacts downloads into a staging dir and renames it into place, so
// the inference server never reads a half-written model directory.
func (w *Workers) stageArtifacts(ctx context.Context, model *v1.EmbeddingModel, root string) error {
	if w.artifacts == nil {
		return avserrors.NewUnavailable("artifact store is not configured")
	}
	staging, err := os.MkdirTemp(root, ".staging-"+model.EmbeddingModelId+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	count, err := w.artifacts.DownloadArtifacts(ctx, model.EmbeddingModelId, staging)
	if err != nil {
		return err
	}
	target := filepath.Join(root, model.EmbeddingModelId)
	if err = os.RemoveAll(target); err != nil {
		return err
	}
	if err = os.Rename(staging, target); err != nil {
		return err
	}
	if err = os.MkdirAll(sharedItemsDir(root, model.PluginName), 0o755); err != nil {
		return err
	}
	klog.Infof("staged %d artifacts for model %s", count, model.EmbeddingModelId)
	return nil
}

func (w *Workers) awaitReady(ctx context.Context, model *v1.EmbeddingModel) error {
	deadline := time.Now().Add(config.GetDeployTimeout())
	ticker := time.NewTicker(config.GetDeployPollInterval())
	defer ticker.Stop()
	for {
		ready, err := w.inference.IsModelReady(ctx, model.PluginName, model.EmbeddingModelId)
		if err != nil {
			klog.ErrorS(err, "readiness probe failed", "model", model.EmbeddingModelId)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return avserrors.NewDeployTimeout(model.EmbeddingModelId)
		}
		select {
		case <-ctx.Done():
			return avserrors.NewCanceled(ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

// runUndeploy removes the model's artifact directory. The plugin's shared
// items directory goes too, but only when no other model of the plugin
// remains deployed.
func (w *Workers) runUndeploy(ctx context.Context, task *v1.Task) error {
	req := &v1.DeploymentTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed deployment payload: %v", err))
	}
	modelId := req.EmbeddingModelId
	if modelId == "" {
		return avserrors.NewBadRequest("embedding_model_id is required")
	}
	root := config.GetModelRepositoryRoot()
	lock := flock.New(modelLockPath(root, modelId))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			klog.ErrorS(err, "failed to release model lock", "model", modelId)
		}
	}()

	if err := os.RemoveAll(filepath.Join(root, modelId)); err != nil {
		return err
	}
	pluginName, exclusive, err := w.pluginUsage(ctx, modelId)
	if err != nil {
		return err
	}
	if pluginName != "" && exclusive {
		if err = os.RemoveAll(sharedItemsDir(root, pluginName)); err != nil {
			return err
		}
	}
	klog.Infof("undeployed model %s", modelId)
	return nil
}

// pluginUsage reports the model's plugin and whether this model was the
// plugin's last registered model.
func (w *Workers) pluginUsage(ctx context.Context, modelId string) (string, bool, error) {
	model, err := w.meta.GetModel(ctx, modelId)
	if err != nil {
		if avserrors.IsNotFound(err) {
			// model row already gone (pair deleted), drop only its own dir
			return "", false, nil
		}
		return "", false, err
	}
	models, err := w.meta.ListModels(ctx)
	if err != nil {
		return "", false, err
	}
	for _, other := range models {
		if other.PluginName == model.PluginName && other.EmbeddingModelId != modelId {
			return model.PluginName, false, nil
		}
	}
	return model.PluginName, true, nil
}

func modelLockPath(root, modelId string) string {
	return filepath.Join(root, modelId+".lock")
}

func sharedItemsDir(root, pluginName string) string {
	return filepath.Join(root, "items-"+pluginName)
}
