/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/clickstream"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func (h *Handler) RegisterSession(c *gin.Context) {
	handle(c, h.registerSession)
}

func (h *Handler) registerSession(c *gin.Context) (interface{}, error) {
	req := &v1.RegisterSessionRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	return h.clicks.RegisterSession(c.Request.Context(), req)
}

func (h *Handler) AppendSessionEvents(c *gin.Context) {
	handle(c, h.appendSessionEvents)
}

func (h *Handler) appendSessionEvents(c *gin.Context) (interface{}, error) {
	req := &v1.SessionEventsRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if err := h.clicks.AppendEvents(c.Request.Context(), req); err != nil {
		return nil, err
	}
	return gin.H{common.SessionId: req.SessionId, "appended": len(req.Events)}, nil
}

func (h *Handler) UseForImprovement(c *gin.Context) {
	handle(c, h.useForImprovement)
}

func (h *Handler) useForImprovement(c *gin.Context) (interface{}, error) {
	req := &v1.UseForImprovementRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if req.SessionId == "" {
		return nil, avserrors.NewBadRequest("session_id is required")
	}
	if err := h.clicks.MarkForImprovement(c.Request.Context(), req.SessionId); err != nil {
		return nil, err
	}
	return gin.H{common.SessionId: req.SessionId}, nil
}

func (h *Handler) GetBatchSessions(c *gin.Context) {
	handle(c, h.getBatchSessions)
}

func (h *Handler) getBatchSessions(c *gin.Context) (interface{}, error) {
	batchId := c.Query("batch_id")
	if batchId == "" {
		return nil, avserrors.NewBadRequest("batch_id is required")
	}
	return h.clicks.GetBatchSessions(c.Request.Context(), batchId,
		queryInt64(c, "after_number", -1),
		queryInt(c, "limit", clickstream.DefaultSessionsLimit),
		queryInt(c, "events_limit", clickstream.DefaultEventsLimit))
}

func (h *Handler) ReleaseBatch(c *gin.Context) {
	handle(c, h.releaseBatch)
}

func (h *Handler) releaseBatch(c *gin.Context) (interface{}, error) {
	req := &v1.ReleaseBatchRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	return h.clicks.ReleaseBatch(c.Request.Context(), req.ReleaseId)
}
