/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/common"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
)

func (h *Handler) SimilaritySearch(c *gin.Context) {
	handle(c, h.similaritySearch)
}

// similaritySearch is the public search entry. A text query is embedded
// through the blue model's plugin; a caller-supplied query_vector bypasses
// inference. With create_session the search is recorded as a clickstream
// session and its query vector is stored in the blue QUERY collection so the
// improve pipeline can find it later.
func (h *Handler) similaritySearch(c *gin.Context) (interface{}, error) {
	req := &v1.SimilaritySearchRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if req.SearchQuery == "" && len(req.QueryVector) == 0 {
		return nil, avserrors.NewBadRequest("one of search_query or query_vector is required")
	}
	info := h.cache.GetBlue(v1.KindRegular)
	if info == nil {
		return nil, avserrors.NewNoBlueCollection("no blue collection to search")
	}

	queryVector := req.QueryVector
	if len(queryVector) == 0 {
		var err error
		queryVector, err = h.inference.ForwardQuery(c.Request.Context(),
			info.EmbeddingModel.PluginName, info.EmbeddingModel.EmbeddingModelId, req.SearchQuery)
		if err != nil {
			return nil, err
		}
	}
	if len(queryVector) != info.EmbeddingModel.Dimensions {
		return nil, avserrors.NewDimensionMismatch(fmt.Sprintf(
			"query vector has %d dimensions, collection %s expects %d",
			len(queryVector), info.CollectionId, info.EmbeddingModel.Dimensions))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = common.DefaultQueryLimit
	}
	results, err := h.vectors.FindSimilar(c.Request.Context(), info, &vectorstore.SimilarQuery{
		Vector:          queryVector,
		Limit:           limit,
		Offset:          req.Offset,
		MaxDistance:     req.MaxDistance,
		Filter:          req.Filter,
		SortBy:          req.SortBy,
		UserId:          req.UserId,
		SimilarityFirst: req.SimilarityFirst,
		Meta:            true,
	})
	if err != nil {
		return nil, err
	}

	resp := &v1.SimilaritySearchResponse{
		SearchResults:  results,
		NextPageOffset: req.Offset + len(results),
	}
	if req.CreateSession {
		sessionId := req.SessionId
		if sessionId == "" {
			sessionId = uuid.NewString()
		}
		if err = h.captureSession(c, sessionId, req, queryVector, results); err != nil {
			// the search itself succeeded, session capture is best effort
			klog.ErrorS(err, "failed to capture search session", "session", sessionId)
		} else {
			resp.SessionId = sessionId
		}
	}
	return resp, nil
}

// captureSession registers the session with its ranked results and stores the
// query vector in the blue QUERY collection keyed by session id.
func (h *Handler) captureSession(c *gin.Context, sessionId string,
	req *v1.SimilaritySearchRequest, queryVector []float32, results []v1.SearchResult) error {
	sessionResults := make([]v1.SessionResult, 0, len(results))
	for i, result := range results {
		sessionResults = append(sessionResults, v1.SessionResult{
			ObjectId: result.ObjectId,
			Rank:     float64(i),
		})
	}
	_, err := h.clicks.RegisterSession(c.Request.Context(), &v1.RegisterSessionRequest{
		SessionId:     sessionId,
		SearchQuery:   req.SearchQuery,
		SearchResults: sessionResults,
		UserId:        req.UserId,
	})
	if err != nil {
		return err
	}
	queryInfo := h.cache.GetBlue(v1.KindQuery)
	if queryInfo == nil {
		return avserrors.NewNoBlueCollection("no blue query collection")
	}
	objectId := fmt.Sprintf("q_%s", sessionId)
	return h.vectors.Upsert(c.Request.Context(), queryInfo, []v1.Object{{
		ObjectId:  objectId,
		SessionId: sessionId,
		UserId:    req.UserId,
		Parts: []v1.ObjectPart{{
			PartId: fmt.Sprintf("%s_p0", objectId),
			Vector: queryVector,
		}},
	}}, true)
}

func (h *Handler) PayloadSearch(c *gin.Context) {
	handle(c, h.payloadSearch)
}

func (h *Handler) payloadSearch(c *gin.Context) (interface{}, error) {
	req := &v1.PayloadSearchRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	info := h.cache.GetBlue(v1.KindRegular)
	if info == nil {
		return nil, avserrors.NewNoBlueCollection("no blue collection to search")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = common.DefaultQueryLimit
	}
	objects, err := h.vectors.FindByPayload(c.Request.Context(), info, req.Filter, limit, req.Offset, req.SortBy)
	if err != nil {
		return nil, err
	}
	return &v1.FindObjectsResponse{Objects: objects}, nil
}

func (h *Handler) PayloadCount(c *gin.Context) {
	handle(c, h.payloadCount)
}

func (h *Handler) payloadCount(c *gin.Context) (interface{}, error) {
	req := &v1.PayloadCountRequest{}
	if err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	info := h.cache.GetBlue(v1.KindRegular)
	if info == nil {
		return nil, avserrors.NewNoBlueCollection("no blue collection to search")
	}
	count, err := h.vectors.CountByPayload(c.Request.Context(), info, req.Filter)
	if err != nil {
		return nil, err
	}
	return &v1.PayloadCountResponse{Count: count}, nil
}
