/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package v1

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

type MetricType string
type AggregationType string
type CollectionKind string
type WorkState string
type TaskKind string
type TaskStatus string

const (
	MetricCosine MetricType = "COSINE"
	MetricDot    MetricType = "DOT"
	MetricEuclid MetricType = "EUCLID"

	AggregationAvg AggregationType = "AVG"
	AggregationMin AggregationType = "MIN"

	KindRegular           CollectionKind = "REGULAR"
	KindQuery             CollectionKind = "QUERY"
	KindCategoriesRegular CollectionKind = "CATEGORIES_REGULAR"
	KindCategoriesQuery   CollectionKind = "CATEGORIES_QUERY"

	WorkStateGreen WorkState = "GREEN"
	WorkStateBlue  WorkState = "BLUE"

	TaskUpsert   TaskKind = "UPSERT"
	TaskDelete   TaskKind = "DELETE"
	TaskReindex  TaskKind = "REINDEX"
	TaskFineTune TaskKind = "FINE_TUNE"
	TaskDeploy   TaskKind = "DEPLOY"
	TaskUndeploy TaskKind = "UNDEPLOY"
	TaskImprove  TaskKind = "IMPROVE"

	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskDone       TaskStatus = "DONE"
	TaskCanceled   TaskStatus = "CANCELED"
	TaskError      TaskStatus = "ERROR"
	TaskRefused    TaskStatus = "REFUSED"
)

var pluginNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func IsValidPluginName(name string) bool {
	return pluginNamePattern.MatchString(name)
}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskDone, TaskCanceled, TaskError, TaskRefused:
		return true
	}
	return false
}

// IsQueryKind reports whether the kind holds query vectors rather than items.
func (k CollectionKind) IsQueryKind() bool {
	return k == KindQuery || k == KindCategoriesQuery
}

// Pair returns the companion kind: every REGULAR collection is created and
// promoted together with a QUERY collection of the same namespace.
func (k CollectionKind) Pair() CollectionKind {
	switch k {
	case KindRegular:
		return KindQuery
	case KindQuery:
		return KindRegular
	case KindCategoriesRegular:
		return KindCategoriesQuery
	case KindCategoriesQuery:
		return KindCategoriesRegular
	}
	return ""
}

// Namespace groups the two default kinds apart from the two categories kinds.
// The blue pointer is tracked per namespace.
func (k CollectionKind) Namespace() string {
	switch k {
	case KindCategoriesRegular, KindCategoriesQuery:
		return NamespaceCategories
	}
	return NamespaceDefault
}

const (
	NamespaceDefault    = "default"
	NamespaceCategories = "categories"
)

func RegularKindOf(namespace string) CollectionKind {
	if namespace == NamespaceCategories {
		return KindCategoriesRegular
	}
	return KindRegular
}

func QueryKindOf(namespace string) CollectionKind {
	if namespace == NamespaceCategories {
		return KindCategoriesQuery
	}
	return KindQuery
}

type HnswParams struct {
	M              int `json:"m"`
	EfConstruction int `json:"ef_construction"`
}

type EmbeddingModel struct {
	EmbeddingModelId string          `json:"embedding_model_id"`
	PluginName       string          `json:"plugin_name"`
	Dimensions       int             `json:"dimensions"`
	MetricType       MetricType      `json:"metric_type"`
	AggregationType  AggregationType `json:"aggregation_type"`
	Hnsw             HnswParams      `json:"hnsw"`
}

func (m *EmbeddingModel) Validate() error {
	if m.EmbeddingModelId == "" {
		return fmt.Errorf("embedding_model_id is required")
	}
	if !IsValidPluginName(m.PluginName) {
		return fmt.Errorf("invalid plugin_name %q", m.PluginName)
	}
	if m.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	switch m.MetricType {
	case MetricCosine, MetricDot, MetricEuclid:
	default:
		return fmt.Errorf("unknown metric_type %q", m.MetricType)
	}
	switch m.AggregationType {
	case AggregationAvg, AggregationMin:
	default:
		return fmt.Errorf("unknown aggregation_type %q", m.AggregationType)
	}
	return nil
}

type CollectionInfo struct {
	CollectionId         string         `json:"collection_id"`
	Kind                 CollectionKind `json:"kind"`
	EmbeddingModel       EmbeddingModel `json:"embedding_model"`
	IndexCreated         bool           `json:"index_created"`
	WorkState            WorkState      `json:"work_state"`
	AppliedOptimizations []string       `json:"applied_optimizations,omitempty"`
	CreateTime           *time.Time     `json:"create_time,omitempty"`
	UpdateTime           *time.Time     `json:"update_time,omitempty"`
}

type ObjectPart struct {
	PartId    string    `json:"part_id"`
	ObjectId  string    `json:"object_id,omitempty"`
	Vector    []float32 `json:"vector"`
	IsAverage bool      `json:"is_average,omitempty"`
	UserId    string    `json:"user_id,omitempty"`
}

type Object struct {
	ObjectId    string                 `json:"object_id"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	StorageMeta map[string]interface{} `json:"storage_meta,omitempty"`
	OriginalId  string                 `json:"original_id,omitempty"`
	UserId      string                 `json:"user_id,omitempty"`
	SessionId   string                 `json:"session_id,omitempty"`
	Parts       []ObjectPart           `json:"parts"`
}

type FailedItem struct {
	ObjectId string `json:"object_id"`
	Reason   string `json:"reason"`
}

type Task struct {
	TaskId           string          `json:"task_id"`
	Kind             TaskKind        `json:"kind"`
	Status           TaskStatus      `json:"status"`
	EmbeddingModelId string          `json:"embedding_model_id,omitempty"`
	BrokerId         string          `json:"broker_id,omitempty"`
	ParentId         string          `json:"parent_id,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	FailedItems      []FailedItem    `json:"failed_items,omitempty"`
	Children         []string        `json:"children,omitempty"`
	CreateTime       *time.Time      `json:"create_time,omitempty"`
	UpdateTime       *time.Time      `json:"update_time,omitempty"`
}

type SortBy struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
	// ForceNotPayload marks Field as a top-level object column rather than
	// a key inside the JSON payload.
	ForceNotPayload bool `json:"force_not_payload,omitempty"`
}

type SearchResult struct {
	ObjectId string                 `json:"object_id"`
	Distance float64                `json:"distance"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Vectors  []ObjectPart           `json:"vectors,omitempty"`
}

type SessionEvent struct {
	EventId    string     `json:"event_id"`
	SessionId  string     `json:"session_id,omitempty"`
	ObjectId   string     `json:"object_id"`
	EventType  string     `json:"event_type,omitempty"`
	CreateTime *time.Time `json:"created_at,omitempty"`
}

type SessionResult struct {
	ObjectId string  `json:"object_id"`
	Rank     float64 `json:"rank"`
}

type Session struct {
	SessionId          string          `json:"session_id"`
	BatchId            string          `json:"batch_id,omitempty"`
	SessionNumber      int64           `json:"session_number"`
	SearchQuery        string          `json:"search_query"`
	SearchResults      []SessionResult `json:"search_results,omitempty"`
	Events             []SessionEvent  `json:"events,omitempty"`
	IsIrrelevant       bool            `json:"is_irrelevant,omitempty"`
	IsPayloadSearch    bool            `json:"is_payload_search,omitempty"`
	UseForImprovement  bool            `json:"use_for_improvement,omitempty"`
	UserId             string          `json:"user_id,omitempty"`
	CreateTime         *time.Time      `json:"created_at,omitempty"`
}

type Batch struct {
	BatchId     string     `json:"batch_id"`
	IsReleased  bool       `json:"is_released"`
	ReleaseId   string     `json:"release_id,omitempty"`
	CreateTime  *time.Time `json:"created_at,omitempty"`
	ReleaseTime *time.Time `json:"released_at,omitempty"`
}

// ImprovementElement is one search result with its vectors, partitioned into
// clicked or non-clicked for the adjuster.
type ImprovementElement struct {
	ObjectId  string      `json:"object_id"`
	Vectors   [][]float32 `json:"vectors"`
	IsAverage []bool      `json:"is_average"`
	UserId    string      `json:"user_id,omitempty"`
}

type ImprovementInput struct {
	SessionId   string               `json:"session_id"`
	QueryVector []float32            `json:"query_vector"`
	Clicked     []ImprovementElement `json:"clicked"`
	NonClicked  []ImprovementElement `json:"non_clicked"`
}
