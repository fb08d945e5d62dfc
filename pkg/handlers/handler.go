/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/clickstream"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/inference"
	"github.com/AMD-AIG-AIMA/AVS/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/AVS/pkg/tasks"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
	jsonutils "github.com/AMD-AIG-AIMA/AVS/pkg/utils/json"
)

var jsonContentType = "application/json; charset=utf-8"

const defaultMaxRequestBodyBytes = int64(8 * 1024 * 1024)

// VectorStore is the slice of the vector store the handlers read and write
// through.
type VectorStore interface {
	Insert(ctx context.Context, info *v1.CollectionInfo, objects []v1.Object) error
	Upsert(ctx context.Context, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error
	Delete(ctx context.Context, info *v1.CollectionInfo, objectIds []string) error
	FindByIds(ctx context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error)
	FindSimilar(ctx context.Context, info *v1.CollectionInfo, q *vectorstore.SimilarQuery) ([]v1.SearchResult, error)
	FindByPayload(ctx context.Context, info *v1.CollectionInfo, filter *v1.PayloadFilter, limit, offset int, sortBy *v1.SortBy) ([]v1.Object, error)
	CountByPayload(ctx context.Context, info *v1.CollectionInfo, filter *v1.PayloadFilter) (int64, error)
}

type Handler struct {
	cache     *cache.Cache
	vectors   VectorStore
	lifecycle *lifecycle.Manager
	tasks     *tasks.Service
	clicks    *clickstream.Service
	inference inference.Interface
}

func NewHandler(collectionCache *cache.Cache, vectors VectorStore,
	manager *lifecycle.Manager, taskService *tasks.Service,
	clickService *clickstream.Service, inferenceClient inference.Interface) *Handler {
	return &Handler{
		cache:     collectionCache,
		vectors:   vectors,
		lifecycle: manager,
		tasks:     taskService,
		clicks:    clickService,
		inference: inferenceClient,
	}
}

type handleFunc func(*gin.Context) (interface{}, error)

func handle(c *gin.Context, fn handleFunc) {
	rsp, err := fn(c)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	code := http.StatusOK
	if c.Writer.Status() > 0 {
		code = c.Writer.Status()
	}
	switch rspType := rsp.(type) {
	case []byte:
		c.Data(code, jsonContentType, rspType)
	case string:
		c.Data(code, jsonContentType, []byte(rspType))
	default:
		c.JSON(code, rspType)
	}
}

func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	lr := &io.LimitedReader{R: req.Body, N: defaultMaxRequestBodyBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, avserrors.NewInternalError(err.Error())
	}
	if lr.N <= 0 {
		return nil, avserrors.NewValidationError(
			fmt.Sprintf("the max body length is %d bytes", defaultMaxRequestBodyBytes))
	}
	return data, nil
}

func getBodyFromRequest(req *http.Request, bodyStruct interface{}) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return avserrors.NewBadRequest("request body is required")
	}
	// a body that cannot be decoded into the expected shape, unknown fields
	// included, is a validation failure rather than a missing parameter
	if err = jsonutils.UnmarshalWithCheck(body, bodyStruct); err != nil {
		return avserrors.NewValidationError(err.Error())
	}
	return nil
}

// resolveCollection picks the target collection: the explicit model id when
// given, else the blue pair of the kind's namespace.
func (h *Handler) resolveCollection(modelId string, kind v1.CollectionKind) (*v1.CollectionInfo, error) {
	if modelId != "" {
		info, ok := h.cache.Get(modelId, kind)
		if !ok {
			return nil, avserrors.NewNotFound(avserrors.CollectionKindName, modelId)
		}
		return &info, nil
	}
	info := h.cache.GetBlue(kind)
	if info == nil {
		return nil, avserrors.NewNoBlueCollection(fmt.Sprintf(
			"no blue %s collection and no embedding_model_id given", kind))
	}
	return info, nil
}

func queryInt(c *gin.Context, name string, defaultValue int) int {
	value := c.Query(name)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func queryInt64(c *gin.Context, name string, defaultValue int64) int64 {
	value := c.Query(name)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
