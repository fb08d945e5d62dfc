/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/clickstream"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/AVS/pkg/plugin"
	"github.com/AMD-AIG-AIMA/AVS/pkg/tasks"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
)

func ck(collectionId string, kind v1.CollectionKind) string {
	return collectionId + "/" + string(kind)
}

// fakeMetaStore backs the cache and the lifecycle manager.
type fakeMetaStore struct {
	models      map[string]v1.EmbeddingModel
	collections map[string]*client.CollectionRow
	pointers    map[string]*client.BluePointerRow
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{
		models:      map[string]v1.EmbeddingModel{},
		collections: map[string]*client.CollectionRow{},
		pointers:    map[string]*client.BluePointerRow{},
	}
}

func (f *fakeMetaStore) ListCollections(context.Context) ([]*client.CollectionRow, error) {
	var rows []*client.CollectionRow
	for _, row := range f.collections {
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeMetaStore) ListModels(context.Context) ([]v1.EmbeddingModel, error) {
	var models []v1.EmbeddingModel
	for _, m := range f.models {
		models = append(models, m)
	}
	return models, nil
}

func (f *fakeMetaStore) GetBluePointer(_ context.Context, namespace string) (*client.BluePointerRow, error) {
	return f.pointers[namespace], nil
}

func (f *fakeMetaStore) SetBluePointer(_ context.Context, namespace, regularId, queryId string) error {
	f.pointers[namespace] = &client.BluePointerRow{
		Namespace: namespace,
		RegularId: nullString(regularId),
		QueryId:   nullString(queryId),
	}
	return nil
}

func (f *fakeMetaStore) ClearBluePointer(_ context.Context, namespace, regularId string) error {
	if p := f.pointers[namespace]; p != nil && p.RegularId.String == regularId {
		delete(f.pointers, namespace)
	}
	return nil
}

func (f *fakeMetaStore) GetModel(_ context.Context, modelId string) (*v1.EmbeddingModel, error) {
	m, ok := f.models[modelId]
	if !ok {
		return nil, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
	}
	return &m, nil
}

func (f *fakeMetaStore) UpsertModel(_ context.Context, model *v1.EmbeddingModel) error {
	f.models[model.EmbeddingModelId] = *model
	return nil
}

func (f *fakeMetaStore) DeleteModel(_ context.Context, modelId string) error {
	delete(f.models, modelId)
	return nil
}

func (f *fakeMetaStore) InsertCollection(_ context.Context, collectionId string, kind v1.CollectionKind, modelId string) error {
	key := ck(collectionId, kind)
	if _, ok := f.collections[key]; ok {
		return nil
	}
	f.collections[key] = &client.CollectionRow{
		CollectionId:     collectionId,
		Kind:             string(kind),
		EmbeddingModelId: modelId,
	}
	return nil
}

func (f *fakeMetaStore) DeleteCollection(_ context.Context, collectionId string, kind v1.CollectionKind) error {
	delete(f.collections, ck(collectionId, kind))
	return nil
}

func (f *fakeMetaStore) MarkIndexCreated(_ context.Context, collectionId string, kind v1.CollectionKind) error {
	if row, ok := f.collections[ck(collectionId, kind)]; ok {
		row.IndexCreated = true
	}
	return nil
}

type fakeSchema struct{}

func (fakeSchema) CreateTables(context.Context, *v1.CollectionInfo) error            { return nil }
func (fakeSchema) DropTables(context.Context, string, v1.CollectionKind) error       { return nil }
func (fakeSchema) CreateIndex(context.Context, *v1.CollectionInfo) error             { return nil }

// fakeVectors records object writes keyed by collection id + kind and serves
// canned search results.
type fakeVectors struct {
	objects     map[string]map[string]v1.Object
	results     []v1.SearchResult
	lastSimilar *vectorstore.SimilarQuery
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{objects: map[string]map[string]v1.Object{}}
}

func (f *fakeVectors) bucket(info *v1.CollectionInfo) map[string]v1.Object {
	key := ck(info.CollectionId, info.Kind)
	if f.objects[key] == nil {
		f.objects[key] = map[string]v1.Object{}
	}
	return f.objects[key]
}

func (f *fakeVectors) Insert(_ context.Context, info *v1.CollectionInfo, objects []v1.Object) error {
	bucket := f.bucket(info)
	for _, object := range objects {
		if _, ok := bucket[object.ObjectId]; ok {
			return avserrors.NewAlreadyExist(fmt.Sprintf("object %s already exists", object.ObjectId))
		}
		bucket[object.ObjectId] = object
	}
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, info *v1.CollectionInfo, objects []v1.Object, _ bool) error {
	bucket := f.bucket(info)
	for _, object := range objects {
		bucket[object.ObjectId] = object
	}
	return nil
}

func (f *fakeVectors) Delete(_ context.Context, info *v1.CollectionInfo, objectIds []string) error {
	bucket := f.bucket(info)
	for _, id := range objectIds {
		delete(bucket, id)
	}
	return nil
}

func (f *fakeVectors) FindByIds(_ context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error) {
	bucket := f.bucket(info)
	var result []v1.Object
	for _, id := range objectIds {
		if object, ok := bucket[id]; ok {
			result = append(result, object)
		}
	}
	return result, nil
}

func (f *fakeVectors) FindSimilar(_ context.Context, _ *v1.CollectionInfo, q *vectorstore.SimilarQuery) ([]v1.SearchResult, error) {
	f.lastSimilar = q
	return f.results, nil
}

func (f *fakeVectors) FindByPayload(_ context.Context, info *v1.CollectionInfo, _ *v1.PayloadFilter, _, _ int, _ *v1.SortBy) ([]v1.Object, error) {
	var result []v1.Object
	for _, object := range f.bucket(info) {
		result = append(result, object)
	}
	return result, nil
}

func (f *fakeVectors) CountByPayload(_ context.Context, info *v1.CollectionInfo, _ *v1.PayloadFilter) (int64, error) {
	return int64(len(f.bucket(info))), nil
}

type fakeInference struct {
	vector []float32
}

func (f *fakeInference) IsModelReady(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeInference) ForwardQuery(context.Context, string, string, string) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeInference) ForwardItems(_ context.Context, _, _ string, items []map[string]interface{}) ([][]float32, error) {
	vectors := make([][]float32, len(items))
	for i := range items {
		vectors[i] = f.vector
	}
	return vectors, nil
}

type harness struct {
	engine   *gin.Engine
	meta     *fakeMetaStore
	cache    *cache.Cache
	vectors  *fakeVectors
	tasks    *fakeTaskStore
	broker   *fakeBroker
	sessions *fakeSessionStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := plugin.Register(plugin.NewDefaultPlugin()); err != nil && !avserrors.IsConflict(err) {
		t.Fatal(err)
	}
	meta := newFakeMetaStore()
	vectors := newFakeVectors()
	taskStore := newFakeTaskStore()
	broker := &fakeBroker{}
	sessions := newFakeSessionStore()
	collectionCache := cache.New(meta)
	assert.NilError(t, collectionCache.Reload(context.Background()))
	h := NewHandler(
		collectionCache,
		vectors,
		lifecycle.NewManager(meta, collectionCache, fakeSchema{}),
		tasks.NewService(taskStore, broker),
		clickstream.NewService(sessions),
		&fakeInference{vector: []float32{1, 0, 0}},
	)
	return &harness{
		engine:   InitHttpHandlers(h),
		meta:     meta,
		cache:    collectionCache,
		vectors:  vectors,
		tasks:    taskStore,
		broker:   broker,
		sessions: sessions,
	}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NilError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) AvsApiError {
	t.Helper()
	var apiErr AvsApiError
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func (h *harness) seedBluePair(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	model := v1.EmbeddingModel{
		EmbeddingModelId: "m1",
		PluginName:       plugin.DefaultPluginName,
		Dimensions:       3,
		MetricType:       v1.MetricCosine,
		AggregationType:  v1.AggregationAvg,
		Hnsw:             v1.HnswParams{M: 16, EfConstruction: 100},
	}
	assert.NilError(t, h.meta.UpsertModel(ctx, &model))
	assert.NilError(t, h.meta.InsertCollection(ctx, "m1", v1.KindRegular, "m1"))
	assert.NilError(t, h.meta.InsertCollection(ctx, "m1", v1.KindQuery, "m1"))
	assert.NilError(t, h.meta.SetBluePointer(ctx, v1.NamespaceDefault, "m1", "m1"))
	assert.NilError(t, h.cache.Reload(ctx))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestNoRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.NotFound)
}

func TestCreateCollectionFillsPluginDefaults(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/collections/create", &v1.CreateCollectionRequest{
		EmbeddingModel: v1.EmbeddingModel{
			EmbeddingModelId: "m1",
			Dimensions:       3,
		},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	var info v1.CollectionInfo
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, info.Kind, v1.KindRegular)
	assert.Equal(t, info.WorkState, v1.WorkStateGreen)
	assert.Equal(t, info.EmbeddingModel.MetricType, v1.MetricCosine)
	assert.Equal(t, info.EmbeddingModel.Hnsw.M, 16)
	// the QUERY twin was created alongside
	_, ok := h.cache.Get("m1", v1.KindQuery)
	assert.Assert(t, ok)
}

func TestGetBlueInfoWithoutBlue(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/collections/get-blue-info", nil)
	assert.Equal(t, rec.Code, http.StatusNotFound)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.NoBlueCollection)
}

func TestSetBlueThenGetBlueInfo(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodGet, "/api/v1/collections/get-blue-info", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var info v1.CollectionInfo
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, info.CollectionId, "m1")
	assert.Equal(t, info.WorkState, v1.WorkStateBlue)
}

func TestRunUpsertionTask(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/upsertion-tasks/tasks/run", &v1.UpsertionTaskRequest{
		TaskId: "t1",
		Items:  []v1.UpsertionItem{{ObjectId: "o1"}},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	var task v1.Task
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, task.TaskId, "t1")
	assert.Equal(t, task.Status, v1.TaskPending)
	assert.DeepEqual(t, h.broker.sends, []string{"avs-upsertion/t1"})

	// idempotent rerun keeps the stored task without a second enqueue
	rec = h.do(t, http.MethodPost, "/api/v1/upsertion-tasks/tasks/run", &v1.UpsertionTaskRequest{
		TaskId: "t1",
		Items:  []v1.UpsertionItem{{ObjectId: "o1"}},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, len(h.broker.sends), 1)

	rec = h.do(t, http.MethodGet, "/api/v1/upsertion-tasks/tasks/info?task_id=t1", nil)
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestCategoriesUpsertionTaskSetsNamespace(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/categories/upsertion-tasks/tasks/run", &v1.UpsertionTaskRequest{
		TaskId: "t1",
		Items:  []v1.UpsertionItem{{ObjectId: "o1"}},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	stored := h.tasks.tasks["t1"]
	req := &v1.UpsertionTaskRequest{}
	assert.NilError(t, json.Unmarshal(stored.Payload, req))
	assert.Equal(t, req.Namespace, v1.NamespaceCategories)
}

func TestTaskInfoRequiresTaskId(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/upsertion-tasks/tasks/info", nil)
	assert.Equal(t, rec.Code, http.StatusBadRequest)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.BadRequest)
}

func TestSimilaritySearchRequiresQueryOrVector(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/embeddings/similarity-search", &v1.SimilaritySearchRequest{Limit: 5})
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestSimilaritySearchCapturesSession(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	h.vectors.results = []v1.SearchResult{
		{ObjectId: "o1", Distance: 0.1},
		{ObjectId: "o2", Distance: 0.4},
	}
	rec := h.do(t, http.MethodPost, "/api/v1/embeddings/similarity-search", &v1.SimilaritySearchRequest{
		SearchQuery:   "red shoes",
		Limit:         5,
		CreateSession: true,
		SessionId:     "s1",
		UserId:        "u1",
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	var resp v1.SimilaritySearchResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.SessionId, "s1")
	assert.Equal(t, len(resp.SearchResults), 2)
	assert.Equal(t, resp.NextPageOffset, 2)

	// session recorded with dense ranks
	row, err := h.sessions.GetSession(context.Background(), "s1")
	assert.NilError(t, err)
	session := row.ToSession()
	assert.Equal(t, len(session.SearchResults), 2)
	assert.Equal(t, session.SearchResults[0].ObjectId, "o1")

	// query vector stored in the blue QUERY collection
	object, ok := h.vectors.objects[ck("m1", v1.KindQuery)]["q_s1"]
	assert.Assert(t, ok)
	assert.Equal(t, object.SessionId, "s1")
	assert.Equal(t, object.UserId, "u1")
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodPost, "/api/v1/embeddings/similarity-search", &v1.SimilaritySearchRequest{
		QueryVector: []float32{1, 0},
		Limit:       5,
	})
	assert.Equal(t, rec.Code, http.StatusUnprocessableEntity)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.DimensionMismatch)
}

func TestFindByIdsRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodPost, "/api/v1/collections/objects/upsert", &v1.UpsertObjectsRequest{
		Objects: []v1.Object{{
			ObjectId: "o1",
			Parts:    []v1.ObjectPart{{PartId: "o1_p0", Vector: []float32{1, 2, 3}}},
		}},
	})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/api/v1/collections/objects/find-by-ids", &v1.FindByIdsRequest{
		ObjectIds: []string{"o1"},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	var resp v1.FindObjectsResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Objects), 1)
	assert.Equal(t, resp.Objects[0].ObjectId, "o1")
}

func TestFindSimilarHonorsMetaFlag(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodPost, "/api/v1/collections/objects/find-similar", &v1.FindSimilarRequest{
		QueryVector: []float32{1, 0, 0},
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, h.vectors.lastSimilar.Meta, false)

	rec = h.do(t, http.MethodPost, "/api/v1/collections/objects/find-similar", &v1.FindSimilarRequest{
		QueryVector: []float32{1, 0, 0},
		Meta:        true,
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, h.vectors.lastSimilar.Meta, true)
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodPost, "/api/v1/collections/objects/find-by-ids", map[string]interface{}{
		"object_ids": []string{"o1"},
		"bogus":      true,
	})
	assert.Equal(t, rec.Code, http.StatusUnprocessableEntity)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.Validation)
}

func TestDeleteBlueCollectionRefused(t *testing.T) {
	h := newHarness(t)
	h.seedBluePair(t)
	rec := h.do(t, http.MethodPost, "/api/v1/collections/delete", &v1.CollectionModelRequest{
		EmbeddingModelId: "m1",
	})
	assert.Equal(t, rec.Code, http.StatusConflict)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.CannotDeleteBlue)
}

func TestReleaseBatchRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/clickstream/session", &v1.RegisterSessionRequest{
		SessionId:   "s1",
		SearchQuery: "boots",
	})
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/api/v1/clickstream/internal/batch/release", &v1.ReleaseBatchRequest{
		ReleaseId: "r1",
	})
	assert.Equal(t, rec.Code, http.StatusOK)
	var resp v1.ReleaseBatchResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, resp.ReleaseId, "r1")

	// events after release are refused
	rec = h.do(t, http.MethodPost, "/api/v1/clickstream/session/events", &v1.SessionEventsRequest{
		SessionId: "s1",
		Events:    []v1.SessionEvent{{EventId: "e1", ObjectId: "o1"}},
	})
	assert.Equal(t, rec.Code, http.StatusConflict)
	assert.Equal(t, decodeError(t, rec).ErrorCode, avserrors.BatchReleased)
}
