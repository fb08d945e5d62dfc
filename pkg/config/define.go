/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	serverPort        = "server.port"
	healthCheckEnable = "healthcheck.enable"

	dbSecretPath           = "db.secret_path"
	dbHost                 = "db.host"
	dbPort                 = "db.port"
	dbName                 = "db.dbname"
	dbUser                 = "db.user"
	dbPassword             = "db.password"
	dbSslMode              = "db.ssl_mode"
	dbMaxOpenConns         = "db.max_open_conns"
	dbMaxIdleConns         = "db.max_idle_conns"
	dbMaxLifetime          = "db.max_lifetime_second"
	dbMaxIdleTimeSecond    = "db.max_idle_time_second"
	dbConnectTimeoutSecond = "db.connect_timeout_second"
	dbRequestTimeoutSecond = "db.request_timeout_second"

	redisAddr       = "redis.addr"
	redisPassword   = "redis.password"
	redisSecretPath = "redis.secret_path"
	redisDB         = "redis.db"

	inferenceEndpoint       = "inference.endpoint"
	inferenceTimeoutSecond  = "inference.timeout_second"
	deployTimeoutSecond     = "deploy.timeout_second"
	deployPollSecond        = "deploy.poll_interval_second"
	modelRepositoryRoot     = "deploy.model_repository"
	maxConcurrentDeploys    = "deploy.max_concurrent"
	s3Enable                = "s3.enable"
	s3Prefix                = "s3."
	s3AccessKey             = "access_key"
	s3SecretKey             = "secret_key"
	s3SecretPath            = "s3.secret_path"
	s3Bucket                = "s3.bucket"
	s3Endpoint              = "s3.endpoint"
	s3Region                = "s3.region"
	s3ArtifactPrefix        = "s3.artifact_prefix"
	upsertionBatchSize      = "workers.upsertion_batch_size"
	reindexBatchSize        = "workers.reindex_batch_size"
	improveGroupSize        = "workers.improve_group_size"
	improvePollSecond       = "workers.improve_poll_second"
	queueRetryMaxElapsed    = "queue.retry_max_elapsed_second"
	queueRetryMaxInterval   = "queue.retry_max_interval_second"
	queueAbortPollMillis    = "queue.abort_poll_millis"
	adjusterSteps           = "improvement.adjuster_steps"
	adjusterStepSize        = "improvement.adjuster_step_size"
	reindexConflictWaitSecs = "workers.reindex_conflict_wait_second"
)
