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
)

// InitHttpHandlers builds the gin engine with the full route surface.
func InitHttpHandlers(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(Logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		AbortWithApiError(c, avserrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})
	engine.GET("/healthz", healthz)

	InitCollectionRouters(engine, h)
	InitSearchRouters(engine, h)
	InitTaskRouters(engine, h)
	InitClickstreamRouters(engine, h)
	return engine
}

func InitCollectionRouters(e *gin.Engine, h *Handler) {
	group := e.Group(common.AvsRouterRootPath)
	{
		group.POST("collections/create", h.CreateCollection(v1.NamespaceDefault))
		group.POST("collections/create-index", h.CreateIndex(v1.NamespaceDefault))
		group.POST("collections/delete", h.DeleteCollection(v1.NamespaceDefault))
		group.POST("collections/set-blue", h.SetBlue(v1.NamespaceDefault))
		group.GET("collections/list", h.ListCollections(v1.KindRegular))
		group.GET("collections/get-info", h.GetCollectionInfo(v1.KindRegular))
		group.GET("collections/get-blue-info", h.GetBlueInfo(v1.KindRegular))
		group.GET("collections/queries/list", h.ListCollections(v1.KindQuery))

		group.POST("collections/categories/create", h.CreateCollection(v1.NamespaceCategories))
		group.POST("collections/categories/create-index", h.CreateIndex(v1.NamespaceCategories))
		group.POST("collections/categories/delete", h.DeleteCollection(v1.NamespaceCategories))
		group.POST("collections/categories/set-blue", h.SetBlue(v1.NamespaceCategories))
		group.GET("collections/categories/list", h.ListCollections(v1.KindCategoriesRegular))
		group.GET("collections/categories/get-info", h.GetCollectionInfo(v1.KindCategoriesRegular))
		group.GET("collections/categories/get-blue-info", h.GetBlueInfo(v1.KindCategoriesRegular))
		group.GET("collections/categories/queries/list", h.ListCollections(v1.KindCategoriesQuery))

		group.POST("collections/objects/insert", h.InsertObjects)
		group.POST("collections/objects/upsert", h.UpsertObjects)
		group.POST("collections/objects/delete", h.DeleteObjects)
		group.POST("collections/objects/find-by-ids", h.FindByIds)
		group.POST("collections/objects/find-similar", h.FindSimilar)
	}
}

func InitSearchRouters(e *gin.Engine, h *Handler) {
	group := e.Group(common.AvsRouterRootPath)
	{
		group.POST("embeddings/similarity-search", h.SimilaritySearch)
		group.POST("embeddings/payload-search", h.PayloadSearch)
		group.POST("embeddings/payload-count", h.PayloadCount)
	}
}

// initTaskFamily wires the shared run/info/list/restart/cancel verbs under
// one family prefix.
func initTaskFamily(group *gin.RouterGroup, prefix string, h *Handler, family *taskFamily) {
	group.POST(prefix+"/tasks/run", h.RunTask(family))
	group.GET(prefix+"/tasks/info", h.TaskInfo)
	group.GET(prefix+"/tasks/list", h.ListTasks(family))
	group.PUT(prefix+"/tasks/restart", h.RestartTask)
	group.PUT(prefix+"/tasks/cancel", h.CancelTask)
}

func InitTaskRouters(e *gin.Engine, h *Handler) {
	group := e.Group(common.AvsRouterRootPath)
	{
		initTaskFamily(group, "upsertion-tasks", h, upsertionFamily(v1.NamespaceDefault))
		initTaskFamily(group, "deletion-tasks", h, deletionFamily(v1.NamespaceDefault))
		initTaskFamily(group, "categories/upsertion-tasks", h, upsertionFamily(v1.NamespaceCategories))
		initTaskFamily(group, "categories/deletion-tasks", h, deletionFamily(v1.NamespaceCategories))
		initTaskFamily(group, "internal/reindex-tasks", h, reindexFamily())
		initTaskFamily(group, "fine-tuning/task", h, fineTuneFamily())
		initTaskFamily(group, "inference-deployment/deploy", h, deploymentFamily(v1.TaskDeploy))
		initTaskFamily(group, "inference-deployment/delete", h, deploymentFamily(v1.TaskUndeploy))
	}
}

func InitClickstreamRouters(e *gin.Engine, h *Handler) {
	group := e.Group(common.AvsRouterClickstreamRootPath)
	{
		group.POST("session", h.RegisterSession)
		group.POST("session/events", h.AppendSessionEvents)
		group.POST("internal/session/use-for-improvement", h.UseForImprovement)
		group.GET("internal/batch/sessions", h.GetBatchSessions)
		group.POST("internal/batch/release", h.ReleaseBatch)
	}
}
