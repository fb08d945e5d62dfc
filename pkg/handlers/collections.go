/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/plugin"
)

// CreateCollection creates the model's REGULAR + QUERY pair in the namespace.
// Index parameters left empty in the request are filled from the plugin's
// search index defaults.
func (h *Handler) CreateCollection(namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			req := &v1.CreateCollectionRequest{}
			if err := getBodyFromRequest(c.Request, req); err != nil {
				return nil, err
			}
			model := req.EmbeddingModel
			if model.PluginName == "" {
				model.PluginName = plugin.DefaultPluginName
			}
			p, err := plugin.Get(model.PluginName)
			if err != nil {
				return nil, err
			}
			index := p.SearchIndexInfo()
			if model.MetricType == "" {
				model.MetricType = index.MetricType
			}
			if model.AggregationType == "" {
				model.AggregationType = index.AggregationType
			}
			if model.Hnsw.M == 0 && model.Hnsw.EfConstruction == 0 {
				model.Hnsw = index.Hnsw
			}
			return h.lifecycle.CreatePair(c.Request.Context(), &model, namespace)
		})
	}
}

func (h *Handler) CreateIndex(namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			req := &v1.CollectionModelRequest{}
			if err := getBodyFromRequest(c.Request, req); err != nil {
				return nil, err
			}
			if err := h.lifecycle.CreateIndex(c.Request.Context(), req.EmbeddingModelId, namespace); err != nil {
				return nil, err
			}
			info, _ := h.cache.Get(req.EmbeddingModelId, v1.RegularKindOf(namespace))
			return &info, nil
		})
	}
}

func (h *Handler) DeleteCollection(namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			req := &v1.CollectionModelRequest{}
			if err := getBodyFromRequest(c.Request, req); err != nil {
				return nil, err
			}
			if err := h.lifecycle.DeletePair(c.Request.Context(), req.EmbeddingModelId, namespace); err != nil {
				return nil, err
			}
			return gin.H{"embedding_model_id": req.EmbeddingModelId}, nil
		})
	}
}

func (h *Handler) SetBlue(namespace string) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			req := &v1.CollectionModelRequest{}
			if err := getBodyFromRequest(c.Request, req); err != nil {
				return nil, err
			}
			if err := h.lifecycle.PromoteToBlue(c.Request.Context(), req.EmbeddingModelId, namespace); err != nil {
				return nil, err
			}
			blue := h.cache.GetBlue(v1.RegularKindOf(namespace))
			return blue, nil
		})
	}
}

func (h *Handler) ListCollections(kind v1.CollectionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			return &v1.ListCollectionsResponse{Collections: h.cache.List(kind)}, nil
		})
	}
}

// GetCollectionInfo resolves by the embedding_model_id query parameter, or
// falls back to the namespace's blue pair when the parameter is absent.
func (h *Handler) GetCollectionInfo(kind v1.CollectionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			return h.resolveCollection(c.Query("embedding_model_id"), kind)
		})
	}
}

func (h *Handler) GetBlueInfo(kind v1.CollectionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle(c, func(c *gin.Context) (interface{}, error) {
			blue := h.cache.GetBlue(kind)
			if blue == nil {
				return nil, avserrors.NewNoBlueCollection(
					"no blue collection in namespace " + kind.Namespace())
			}
			return blue, nil
		})
	}
}
