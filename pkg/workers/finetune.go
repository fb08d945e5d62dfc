/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

const fineTuneSessionsPage = 500

// fineTuneExample is one training line: the query text with the clicked and
// non-clicked result ids of a released session.
type fineTuneExample struct {
	SessionId  string   `json:"session_id"`
	Query      string   `json:"query"`
	Clicked    []string `json:"clicked"`
	NonClicked []string `json:"non_clicked"`
}

// runFineTune exports a released batch as a JSONL training set and uploads
// it under the model's artifact prefix, where the external trainer picks it
// up.
func (w *Workers) runFineTune(ctx context.Context, task *v1.Task) error {
	req := &v1.FineTuneTaskRequest{}
	if err := jsonutils.UnmarshalWithCheck(task.Payload, req); err != nil {
		return avserrors.NewValidationError(fmt.Sprintf("malformed fine-tune payload: %v", err))
	}
	if req.BatchId == "" {
		return avserrors.NewBadRequest("batch_id is required")
	}
	if w.artifacts == nil {
		return avserrors.NewUnavailable("artifact store is not configured")
	}
	info, err := w.resolveRegular(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return err
	}
	batch, err := w.meta.GetBatch(ctx, req.BatchId)
	if err != nil {
		return err
	}
	if !batch.IsReleased {
		return avserrors.NewTaskRefused(fmt.Sprintf(
			"batch %s is not released yet", req.BatchId))
	}

	file, err := os.CreateTemp("", "avs-fine-tune-*.jsonl")
	if err != nil {
		return err
	}
	defer func() {
		file.Close()
		os.Remove(file.Name())
	}()

	examples, err := w.exportBatch(ctx, req.BatchId, file)
	if err != nil {
		return err
	}
	if examples == 0 {
		return avserrors.NewTaskRefused(fmt.Sprintf(
			"batch %s has no usable sessions", req.BatchId))
	}
	if _, err = file.Seek(0, 0); err != nil {
		return err
	}
	modelId := info.EmbeddingModel.EmbeddingModelId
	name := fmt.Sprintf("fine-tune/%s.jsonl", req.BatchId)
	if err = w.artifacts.UploadArtifact(ctx, modelId, name, file); err != nil {
		return err
	}
	klog.Infof("fine-tune task %s exported %d examples for model %s", task.TaskId, examples, modelId)
	return nil
}

// exportBatch streams the batch's sessions into JSONL, skipping payload
// searches and sessions without clicks.
func (w *Workers) exportBatch(ctx context.Context, batchId string, file *os.File) (int, error) {
	encoder := json.NewEncoder(file)
	examples := 0
	afterNumber := int64(-1)
	for {
		if err := checkpoint(ctx); err != nil {
			return 0, err
		}
		rows, err := w.meta.ListBatchSessions(ctx, batchId, afterNumber, fineTuneSessionsPage)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return examples, nil
		}
		for _, row := range rows {
			afterNumber = row.SessionNumber
			if row.IsPayloadSearch || row.IsIrrelevant {
				continue
			}
			session := row.ToSession()
			events, err := w.meta.ListSessionEvents(ctx, row.SessionId, fineTuneSessionsPage)
			if err != nil {
				return 0, err
			}
			if len(events) == 0 {
				continue
			}
			clicked := map[string]bool{}
			for _, event := range events {
				clicked[event.ObjectId] = true
			}
			example := fineTuneExample{
				SessionId: row.SessionId,
				Query:     row.SearchQuery,
			}
			for _, result := range session.SearchResults {
				if clicked[result.ObjectId] {
					example.Clicked = append(example.Clicked, result.ObjectId)
				} else {
					example.NonClicked = append(example.NonClicked, result.ObjectId)
				}
			}
			if len(example.Clicked) == 0 {
				continue
			}
			if err = encoder.Encode(&example); err != nil {
				return 0, err
			}
			examples++
		}
	}
}
