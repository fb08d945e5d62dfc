/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package v1

// collection management

type CreateCollectionRequest struct {
	EmbeddingModel EmbeddingModel `json:"embedding_model"`
}

type CollectionModelRequest struct {
	EmbeddingModelId string `json:"embedding_model_id"`
}

type ListCollectionsResponse struct {
	Collections []CollectionInfo `json:"collections"`
}

// object-level vector ops

type InsertObjectsRequest struct {
	EmbeddingModelId string   `json:"embedding_model_id,omitempty"`
	Objects          []Object `json:"objects"`
}

type UpsertObjectsRequest struct {
	EmbeddingModelId string   `json:"embedding_model_id,omitempty"`
	Objects          []Object `json:"objects"`
	ShrinkParts      bool     `json:"shrink_parts,omitempty"`
}

type DeleteObjectsRequest struct {
	EmbeddingModelId string   `json:"embedding_model_id,omitempty"`
	ObjectIds        []string `json:"object_ids"`
}

type FindByIdsRequest struct {
	EmbeddingModelId string   `json:"embedding_model_id,omitempty"`
	ObjectIds        []string `json:"object_ids"`
}

type FindObjectsResponse struct {
	Objects []Object `json:"objects"`
}

type FindSimilarRequest struct {
	EmbeddingModelId string         `json:"embedding_model_id,omitempty"`
	QueryVector      []float32      `json:"query_vector"`
	Limit            int            `json:"limit"`
	Offset           int            `json:"offset,omitempty"`
	MaxDistance      *float64       `json:"max_distance,omitempty"`
	Filter           *PayloadFilter `json:"filter,omitempty"`
	SortBy           *SortBy        `json:"sort_by,omitempty"`
	UserId           string         `json:"user_id,omitempty"`
	WithVectors      bool           `json:"with_vectors,omitempty"`
	SimilarityFirst  bool           `json:"similarity_first,omitempty"`
	Meta             bool           `json:"meta,omitempty"`
}

type FindSimilarResponse struct {
	SearchResults []SearchResult `json:"search_results"`
}

// public search

type SimilaritySearchRequest struct {
	SearchQuery     string         `json:"search_query,omitempty"`
	QueryVector     []float32      `json:"query_vector,omitempty"`
	Filter          *PayloadFilter `json:"filter,omitempty"`
	Limit           int            `json:"limit"`
	Offset          int            `json:"offset,omitempty"`
	MaxDistance     *float64       `json:"max_distance,omitempty"`
	SortBy          *SortBy        `json:"sort_by,omitempty"`
	CreateSession   bool           `json:"create_session,omitempty"`
	SessionId       string         `json:"session_id,omitempty"`
	UserId          string         `json:"user_id,omitempty"`
	SimilarityFirst bool           `json:"similarity_first,omitempty"`
}

type SimilaritySearchResponse struct {
	SessionId      string                 `json:"session_id,omitempty"`
	SearchResults  []SearchResult         `json:"search_results"`
	NextPageOffset int                    `json:"next_page_offset"`
	MetaInfo       map[string]interface{} `json:"meta_info,omitempty"`
}

type PayloadSearchRequest struct {
	Filter *PayloadFilter `json:"filter"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset,omitempty"`
	SortBy *SortBy        `json:"sort_by,omitempty"`
}

type PayloadCountRequest struct {
	Filter *PayloadFilter `json:"filter"`
}

type PayloadCountResponse struct {
	Count int64 `json:"count"`
}

// task families

type UpsertionItem struct {
	ObjectId string                 `json:"object_id"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	ItemInfo map[string]interface{} `json:"item_info,omitempty"`
}

type UpsertionTaskRequest struct {
	TaskId           string          `json:"task_id,omitempty"`
	EmbeddingModelId string          `json:"embedding_model_id,omitempty"`
	Namespace        string          `json:"namespace,omitempty"`
	Items            []UpsertionItem `json:"items"`
}

type DeletionTaskRequest struct {
	TaskId           string   `json:"task_id,omitempty"`
	EmbeddingModelId string   `json:"embedding_model_id,omitempty"`
	Namespace        string   `json:"namespace,omitempty"`
	ObjectIds        []string `json:"object_ids"`
}

type ReindexTarget struct {
	EmbeddingModelId string `json:"embedding_model_id"`
}

type ReindexTaskRequest struct {
	TaskId         string        `json:"task_id,omitempty"`
	Source         ReindexTarget `json:"source"`
	Dest           ReindexTarget `json:"dest"`
	DeployAsBlue   bool          `json:"deploy_as_blue,omitempty"`
	WaitOnConflict bool          `json:"wait_on_conflict,omitempty"`
}

type DeploymentTaskRequest struct {
	TaskId           string `json:"task_id,omitempty"`
	EmbeddingModelId string `json:"embedding_model_id"`
}

type FineTuneTaskRequest struct {
	TaskId           string `json:"task_id,omitempty"`
	EmbeddingModelId string `json:"embedding_model_id,omitempty"`
	BatchId          string `json:"batch_id,omitempty"`
}

type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
	Total int64  `json:"total"`
}

// clickstream

type RegisterSessionRequest struct {
	SessionId       string          `json:"session_id"`
	SearchQuery     string          `json:"search_query"`
	SearchResults   []SessionResult `json:"search_results"`
	IsIrrelevant    bool            `json:"is_irrelevant,omitempty"`
	IsPayloadSearch bool            `json:"is_payload_search,omitempty"`
	UserId          string          `json:"user_id,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty"`
}

type SessionEventsRequest struct {
	SessionId string         `json:"session_id"`
	Events    []SessionEvent `json:"events"`
}

type UseForImprovementRequest struct {
	SessionId string `json:"session_id"`
}

type GetBatchSessionsResponse struct {
	BatchId  string    `json:"batch_id"`
	Sessions []Session `json:"sessions"`
}

type ReleaseBatchRequest struct {
	ReleaseId string `json:"release_id"`
}

type ReleaseBatchResponse struct {
	BatchId   string `json:"batch_id"`
	ReleaseId string `json:"release_id"`
}
