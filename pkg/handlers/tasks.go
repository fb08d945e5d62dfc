/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

// taskFamily binds one route family to its kind and payload shape. Every
// family shares the same run/info/list/restart/cancel verbs; only the run
// payload differs.
type taskFamily struct {
	kind  v1.TaskKind
	parse func(body []byte) (modelId, taskId string, payload interface{}, err error)
}

func upsertionFamily(namespace string) *taskFamily {
	return &taskFamily{
		kind: v1.TaskUpsert,
		parse: func(body []byte) (string, string, interface{}, error) {
			req := &v1.UpsertionTaskRequest{}
			if err := jsonutils.UnmarshalWithCheck(body, req); err != nil {
				return "", "", nil, avserrors.NewBadRequest(err.Error())
			}
			req.Namespace = namespace
			return req.EmbeddingModelId, req.TaskId, req, nil
		},
	}
}

func deletionFamily(namespace string) *taskFamily {
	return &taskFamily{
		kind: v1.TaskDelete,
		parse: func(body []byte) (string, string, interface{}, error) {
			req := &v1.DeletionTaskRequest{}
			if err := jsonutils.UnmarshalWithCheck(body, req); err != nil {
				return "", "", nil, avserrors.NewBadRequest(err.Error())
			}
			req.Namespace = namespace
			return req.EmbeddingModelId, req.TaskId, req, nil
		},
	}
}

func reindexFamily() *taskFamily {
	return &taskFamily{
		kind: v1.TaskReindex,
		parse: func(body []byte) (string, string, interface{}, error) {
			req := &v1.ReindexTaskRequest{}
			if err := jsonutils.UnmarshalWithCheck(body, req); err != nil {
				return "", "", nil, avserrors.NewBadRequest(err.Error())
			}
			if req.Source.EmbeddingModelId == "" || req.Dest.EmbeddingModelId == "" {
				return "", "", nil, avserrors.NewBadRequest("source and dest embedding_model_id are required")
			}
			return req.Dest.EmbeddingModelId, req.TaskId, req, nil
		},
	}
}

func fineTuneFamily() *taskFamily {
	return &taskFamily{
		kind: v1.TaskFineTune,
		parse: func(body []byte) (string, string, interface{}, error) {
			req := &v1.FineTuneTaskRequest{}
			if err := jsonutils.UnmarshalWithCheck(body, req); err != nil {
				return "", "", nil, avserrors.NewBadRequest(err.Error())
			}
			return req.EmbeddingModelId, req.TaskId, req, nil
		},
	}
}

func deploymentFamily(kind v1.TaskKind) *taskFamily {
	return &taskFamily{
		kind: kind,
		parse: func(body []byte) (string, string, interface{}, error) {
			req := &v1.DeploymentTaskRequest{}
			if err := jsonutils.UnmarshalWithCheck(body, req); err != nil {
				return "", "", nil, avserrors.NewBadRequest(err.Error())
			}
			if req.EmbeddingModelId == "" {
				return "", "", nil, avserrors.NewBadRequest("embedding_model_id is required")
			}
			return req.EmbeddingModelId, req.TaskId, req, nil
		},
	}
}

func (h *Handler) RunTask(family *taskFamily) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			body, err := readBody(c.Request)
			if err != nil {
				return nil, err
			}
			modelId, taskId, payload, err := family.parse(body)
			if err != nil {
				return nil, err
			}
			return h.tasks.Submit(c.Request.Context(), family.kind, modelId, taskId, payload)
		})
	}
}

func (h *Handler) TaskInfo(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		taskId := c.Query(common.TaskId)
		if taskId == "" {
			return nil, avserrors.NewBadRequest("task_id is required")
		}
		return h.tasks.Get(c.Request.Context(), taskId)
	})
}

func (h *Handler) ListTasks(family *taskFamily) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			return h.tasks.List(c.Request.Context(), family.kind,
				v1.TaskStatus(c.Query("status")),
				queryInt(c, "offset", 0), queryInt(c, "limit", 0))
		})
	}
}

func (h *Handler) RestartTask(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		taskId := c.Query(common.TaskId)
		if taskId == "" {
			return nil, avserrors.NewBadRequest("task_id is required")
		}
		return h.tasks.Restart(c.Request.Context(), taskId)
	})
}

func (h *Handler) CancelTask(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		taskId := c.Query(common.TaskId)
		if taskId == "" {
			return nil, avserrors.NewBadRequest("task_id is required")
		}
		return h.tasks.Cancel(c.Request.Context(), taskId)
	})
}
