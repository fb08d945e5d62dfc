/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
)

const (
	DESC = "desc"
	ASC  = "asc"

	CreateTime = "create_time"
)

type ModelRow struct {
	Id                 int64       `db:"id"`
	EmbeddingModelId   string      `db:"embedding_model_id"`
	PluginName         string      `db:"plugin_name"`
	Dimensions         int         `db:"dimensions"`
	MetricType         string      `db:"metric_type"`
	AggregationType    string      `db:"aggregation_type"`
	HnswM              int         `db:"hnsw_m"`
	HnswEfConstruction int         `db:"hnsw_ef_construction"`
	CreateTime         pq.NullTime `db:"create_time"`
}

// GetModelFieldTags returns the ModelFieldTags value.
func GetModelFieldTags() map[string]string {
	m := ModelRow{}
	return getFieldTags(m)
}

func (r *ModelRow) ToModel() v1.EmbeddingModel {
	return v1.EmbeddingModel{
		EmbeddingModelId: r.EmbeddingModelId,
		PluginName:       r.PluginName,
		Dimensions:       r.Dimensions,
		MetricType:       v1.MetricType(r.MetricType),
		AggregationType:  v1.AggregationType(r.AggregationType),
		Hnsw: v1.HnswParams{
			M:              r.HnswM,
			EfConstruction: r.HnswEfConstruction,
		},
	}
}

type CollectionRow struct {
	Id                   int64          `db:"id"`
	CollectionId         string         `db:"collection_id"`
	Kind                 string         `db:"kind"`
	EmbeddingModelId     string         `db:"embedding_model_id"`
	IndexCreated         bool           `db:"index_created"`
	AppliedOptimizations sql.NullString `db:"applied_optimizations"`
	CreateTime           pq.NullTime    `db:"create_time"`
	UpdateTime           pq.NullTime    `db:"update_time"`
}

// GetCollectionFieldTags returns the CollectionFieldTags value.
func GetCollectionFieldTags() map[string]string {
	c := CollectionRow{}
	return getFieldTags(c)
}

func (r *CollectionRow) ToInfo(model v1.EmbeddingModel, blue bool) v1.CollectionInfo {
	info := v1.CollectionInfo{
		CollectionId:   r.CollectionId,
		Kind:           v1.CollectionKind(r.Kind),
		EmbeddingModel: model,
		IndexCreated:   r.IndexCreated,
		WorkState:      v1.WorkStateGreen,
	}
	if blue {
		info.WorkState = v1.WorkStateBlue
	}
	if r.AppliedOptimizations.Valid {
		_ = json.Unmarshal([]byte(r.AppliedOptimizations.String), &info.AppliedOptimizations)
	}
	if t := dbutils.ParseNullTime(r.CreateTime); !t.IsZero() {
		info.CreateTime = &t
	}
	if t := dbutils.ParseNullTime(r.UpdateTime); !t.IsZero() {
		info.UpdateTime = &t
	}
	return info
}

// BluePointerRow tracks the blue pair of one namespace. Flipping the pair is
// a single-row update, so readers observe either the old pair or the new one.
type BluePointerRow struct {
	Namespace  string         `db:"namespace"`
	RegularId  sql.NullString `db:"regular_id"`
	QueryId    sql.NullString `db:"query_id"`
	UpdateTime pq.NullTime    `db:"update_time"`
}

type TaskRow struct {
	Id               int64          `db:"id"`
	TaskId           string         `db:"task_id"`
	Kind             string         `db:"kind"`
	Status           string         `db:"status"`
	EmbeddingModelId sql.NullString `db:"embedding_model_id"`
	BrokerId         sql.NullString `db:"broker_id"`
	ParentId         sql.NullString `db:"parent_id"`
	Payload          []byte         `db:"payload"`
	FailedItems      sql.NullString `db:"failed_items"`
	CreateTime       pq.NullTime    `db:"create_time"`
	UpdateTime       pq.NullTime    `db:"update_time"`
}

// GetTaskFieldTags returns the TaskFieldTags value.
func GetTaskFieldTags() map[string]string {
	t := TaskRow{}
	return getFieldTags(t)
}

func (r *TaskRow) ToTask() v1.Task {
	task := v1.Task{
		TaskId:           r.TaskId,
		Kind:             v1.TaskKind(r.Kind),
		Status:           v1.TaskStatus(r.Status),
		EmbeddingModelId: dbutils.ParseNullString(r.EmbeddingModelId),
		BrokerId:         dbutils.ParseNullString(r.BrokerId),
		ParentId:         dbutils.ParseNullString(r.ParentId),
		Payload:          r.Payload,
	}
	if r.FailedItems.Valid && r.FailedItems.String != "" {
		_ = json.Unmarshal([]byte(r.FailedItems.String), &task.FailedItems)
	}
	if t := dbutils.ParseNullTime(r.CreateTime); !t.IsZero() {
		task.CreateTime = &t
	}
	if t := dbutils.ParseNullTime(r.UpdateTime); !t.IsZero() {
		task.UpdateTime = &t
	}
	return task
}

type SessionRow struct {
	Id                int64          `db:"id"`
	SessionId         string         `db:"session_id"`
	BatchId           string         `db:"batch_id"`
	SessionNumber     int64          `db:"session_number"`
	SearchQuery       string         `db:"search_query"`
	Results           sql.NullString `db:"results"`
	IsIrrelevant      bool           `db:"is_irrelevant"`
	IsPayloadSearch   bool           `db:"is_payload_search"`
	UseForImprovement bool           `db:"use_for_improvement"`
	UserId            sql.NullString `db:"user_id"`
	CreateTime        pq.NullTime    `db:"create_time"`
}

// GetSessionFieldTags returns the SessionFieldTags value.
func GetSessionFieldTags() map[string]string {
	s := SessionRow{}
	return getFieldTags(s)
}

func (r *SessionRow) ToSession() v1.Session {
	s := v1.Session{
		SessionId:         r.SessionId,
		BatchId:           r.BatchId,
		SessionNumber:     r.SessionNumber,
		SearchQuery:       r.SearchQuery,
		IsIrrelevant:      r.IsIrrelevant,
		IsPayloadSearch:   r.IsPayloadSearch,
		UseForImprovement: r.UseForImprovement,
		UserId:            dbutils.ParseNullString(r.UserId),
	}
	if r.Results.Valid && r.Results.String != "" {
		_ = json.Unmarshal([]byte(r.Results.String), &s.SearchResults)
	}
	if t := dbutils.ParseNullTime(r.CreateTime); !t.IsZero() {
		s.CreateTime = &t
	}
	return s
}

type EventRow struct {
	Id         int64       `db:"id"`
	EventId    string      `db:"event_id"`
	SessionId  string      `db:"session_id"`
	ObjectId   string      `db:"object_id"`
	EventType  string      `db:"event_type"`
	CreateTime pq.NullTime `db:"create_time"`
}

// GetEventFieldTags returns the EventFieldTags value.
func GetEventFieldTags() map[string]string {
	e := EventRow{}
	return getFieldTags(e)
}

func (r *EventRow) ToEvent() v1.SessionEvent {
	e := v1.SessionEvent{
		EventId:   r.EventId,
		SessionId: r.SessionId,
		ObjectId:  r.ObjectId,
		EventType: r.EventType,
	}
	if t := dbutils.ParseNullTime(r.CreateTime); !t.IsZero() {
		e.CreateTime = &t
	}
	return e
}

type BatchRow struct {
	Id          int64          `db:"id"`
	BatchId     string         `db:"batch_id"`
	IsReleased  bool           `db:"is_released"`
	ReleaseId   sql.NullString `db:"release_id"`
	NextNumber  int64          `db:"next_number"`
	CreateTime  pq.NullTime    `db:"create_time"`
	ReleaseTime pq.NullTime    `db:"release_time"`
}

// GetBatchFieldTags returns the BatchFieldTags value.
func GetBatchFieldTags() map[string]string {
	b := BatchRow{}
	return getFieldTags(b)
}

func (r *BatchRow) ToBatch() v1.Batch {
	b := v1.Batch{
		BatchId:    r.BatchId,
		IsReleased: r.IsReleased,
		ReleaseId:  dbutils.ParseNullString(r.ReleaseId),
	}
	if t := dbutils.ParseNullTime(r.CreateTime); !t.IsZero() {
		b.CreateTime = &t
	}
	if t := dbutils.ParseNullTime(r.ReleaseTime); !t.IsZero() {
		b.ReleaseTime = &t
	}
	return b
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates SQL command string using reflection
// Iterates through struct fields and builds column and value lists
// Skips fields with specified ignoreTag
// Returns formatted SQL command with columns and values
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}

// pqArray adapts a string slice for `= ANY($n)` comparisons.
func pqArray(values []string) interface{} {
	return pq.Array(values)
}

// MarshalJsonColumn renders v as a jsonb column value, empty on nil.
func MarshalJsonColumn(v interface{}) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}
