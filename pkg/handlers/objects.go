/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
)

// Object-level operations hit the REGULAR collection directly, without the
// inference round trip of the task-based ingest path. The caller supplies
// vectors itself.

func (h *Handler) InsertObjects(c *gin.Context) {
	handle(c, h.insertObjects)
}

func (h *Handler) insertObjects(c *gin.Context) (interface{}, error) {
	req := &v1.InsertObjectsRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.Objects) == 0 {
		return nil, avserrors.NewBadRequest("objects are required")
	}
	info, err := h.resolveCollection(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return nil, err
	}
	if err = h.vectors.Insert(c.Request.Context(), info, req.Objects); err != nil {
		return nil, err
	}
	return gin.H{"inserted": len(req.Objects)}, nil
}

func (h *Handler) UpsertObjects(c *gin.Context) {
	handle(c, h.upsertObjects)
}

func (h *Handler) upsertObjects(c *gin.Context) (interface{}, error) {
	req := &v1.UpsertObjectsRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.Objects) == 0 {
		return nil, avserrors.NewBadRequest("objects are required")
	}
	info, err := h.resolveCollection(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return nil, err
	}
	if err = h.vectors.Upsert(c.Request.Context(), info, req.Objects, req.ShrinkParts); err != nil {
		return nil, err
	}
	return gin.H{"upserted": len(req.Objects)}, nil
}

func (h *Handler) DeleteObjects(c *gin.Context) {
	handle(c, h.deleteObjects)
}

func (h *Handler) deleteObjects(c *gin.Context) (interface{}, error) {
	req := &v1.DeleteObjectsRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.ObjectIds) == 0 {
		return nil, avserrors.NewBadRequest("object_ids are required")
	}
	info, err := h.resolveCollection(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return nil, err
	}
	if err = h.vectors.Delete(c.Request.Context(), info, req.ObjectIds); err != nil {
		return nil, err
	}
	return gin.H{"deleted": len(req.ObjectIds)}, nil
}

func (h *Handler) FindByIds(c *gin.Context) {
	handle(c, h.findByIds)
}

func (h *Handler) findByIds(c *gin.Context) (interface{}, error) {
	req := &v1.FindByIdsRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.ObjectIds) == 0 {
		return nil, avserrors.NewBadRequest("object_ids are required")
	}
	info, err := h.resolveCollection(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return nil, err
	}
	objects, err := h.vectors.FindByIds(c.Request.Context(), info, req.ObjectIds)
	if err != nil {
		return nil, err
	}
	return &v1.FindObjectsResponse{Objects: objects}, nil
}

func (h *Handler) FindSimilar(c *gin.Context) {
	handle(c, h.findSimilar)
}

func (h *Handler) findSimilar(c *gin.Context) (interface{}, error) {
	req := &v1.FindSimilarRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.QueryVector) == 0 {
		return nil, avserrors.NewBadRequest("query_vector is required")
	}
	info, err := h.resolveCollection(req.EmbeddingModelId, v1.KindRegular)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = common.DefaultQueryLimit
	}
	results, err := h.vectors.FindSimilar(c.Request.Context(), info, &vectorstore.SimilarQuery{
		Vector:          req.QueryVector,
		Limit:           limit,
		Offset:          req.Offset,
		MaxDistance:     req.MaxDistance,
		Filter:          req.Filter,
		SortBy:          req.SortBy,
		UserId:          req.UserId,
		WithVectors:     req.WithVectors,
		SimilarityFirst: req.SimilarityFirst,
		Meta:            req.Meta,
	})
	if err != nil {
		return nil, err
	}
	return &v1.FindSimilarResponse{SearchResults: results}, nil
}
