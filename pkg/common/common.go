/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package common

const (
	AvsRouterRootPath            = "/api/v1/"
	AvsRouterClickstreamRootPath = "/api/v1/clickstream/"

	// gin context keys
	TaskId    = "task_id"
	SessionId = "session_id"
	UserId    = "user_id"

	// queue names, one per worker kind
	QueueUpsertion   = "avs-upsertion"
	QueueDeletion    = "avs-deletion"
	QueueReindex     = "avs-reindex"
	QueueImprovement = "avs-improvement"
	QueueDeploy      = "avs-deploy"
	QueueUndeploy    = "avs-undeploy"
	QueueFineTune    = "avs-fine-tune"

	DefaultQueryLimit = 100
)
