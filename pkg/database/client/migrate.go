/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"k8s.io/klog/v2"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS embedding_model (
		id BIGSERIAL PRIMARY KEY,
		embedding_model_id TEXT NOT NULL UNIQUE,
		plugin_name TEXT NOT NULL,
		dimensions INT NOT NULL,
		metric_type TEXT NOT NULL,
		aggregation_type TEXT NOT NULL,
		hnsw_m INT NOT NULL DEFAULT 16,
		hnsw_ef_construction INT NOT NULL DEFAULT 100,
		create_time TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS collection (
		id BIGSERIAL PRIMARY KEY,
		collection_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		embedding_model_id TEXT NOT NULL,
		index_created BOOLEAN NOT NULL DEFAULT FALSE,
		applied_optimizations JSONB,
		create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (collection_id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS blue_pointer (
		namespace TEXT PRIMARY KEY,
		regular_id TEXT,
		query_id TEXT,
		update_time TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS task (
		id BIGSERIAL PRIMARY KEY,
		task_id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		embedding_model_id TEXT,
		broker_id TEXT,
		parent_id TEXT,
		payload JSONB,
		failed_items JSONB,
		create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		update_time TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_kind_status ON task (kind, status, create_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_task_parent ON task (parent_id) WHERE parent_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS session_batch (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL UNIQUE,
		is_released BOOLEAN NOT NULL DEFAULT FALSE,
		release_id TEXT,
		next_number BIGINT NOT NULL DEFAULT 0,
		create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		release_time TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_batch_active ON session_batch (is_released) WHERE NOT is_released`,
	`CREATE TABLE IF NOT EXISTS search_session (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		batch_id TEXT NOT NULL,
		session_number BIGINT NOT NULL,
		search_query TEXT NOT NULL DEFAULT '',
		results JSONB,
		is_irrelevant BOOLEAN NOT NULL DEFAULT FALSE,
		is_payload_search BOOLEAN NOT NULL DEFAULT FALSE,
		use_for_improvement BOOLEAN NOT NULL DEFAULT FALSE,
		user_id TEXT,
		create_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (batch_id, session_number)
	)`,
	`CREATE TABLE IF NOT EXISTS session_event (
		id BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT 'click',
		create_time TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_session ON session_event (session_id)`,
}

// Migrate creates the metadata schema. Statements are idempotent so the
// method is safe to run on every process start.
func (c *Client) Migrate() error {
	if c == nil || c.gorm == nil {
		return nil
	}
	for _, stmt := range migrations {
		if err := c.gorm.Exec(stmt).Error; err != nil {
			klog.ErrorS(err, "failed to run migration statement")
			return err
		}
	}
	klog.Infof("metadata schema migrated, %d statements", len(migrations))
	return nil
}
