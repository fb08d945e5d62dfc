/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"context"
	"database/sql"
	"testing"

	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// fakeMeta implements MetaStore and cache.Store over maps.
type fakeMeta struct {
	models      map[string]v1.EmbeddingModel
	collections map[string]*client.CollectionRow
	pointers    map[string]*client.BluePointerRow
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		models:      map[string]v1.EmbeddingModel{},
		collections: map[string]*client.CollectionRow{},
		pointers:    map[string]*client.BluePointerRow{},
	}
}

func collKey(id string, kind v1.CollectionKind) string {
	return id + "/" + string(kind)
}

func (f *fakeMeta) GetModel(_ context.Context, modelId string) (*v1.EmbeddingModel, error) {
	if m, ok := f.models[modelId]; ok {
		return &m, nil
	}
	return nil, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
}

func (f *fakeMeta) UpsertModel(_ context.Context, model *v1.EmbeddingModel) error {
	if _, ok := f.models[model.EmbeddingModelId]; !ok {
		f.models[model.EmbeddingModelId] = *model
	}
	return nil
}

func (f *fakeMeta) DeleteModel(_ context.Context, modelId string) error {
	delete(f.models, modelId)
	return nil
}

func (f *fakeMeta) InsertCollection(_ context.Context, collectionId string, kind v1.CollectionKind, modelId string) error {
	key := collKey(collectionId, kind)
	if _, ok := f.collections[key]; !ok {
		f.collections[key] = &client.CollectionRow{
			CollectionId:     collectionId,
			Kind:             string(kind),
			EmbeddingModelId: modelId,
		}
	}
	return nil
}

func (f *fakeMeta) DeleteCollection(_ context.Context, collectionId string, kind v1.CollectionKind) error {
	delete(f.collections, collKey(collectionId, kind))
	return nil
}

func (f *fakeMeta) MarkIndexCreated(_ context.Context, collectionId string, kind v1.CollectionKind) error {
	if row, ok := f.collections[collKey(collectionId, kind)]; ok {
		row.IndexCreated = true
	}
	return nil
}

func (f *fakeMeta) ClearBluePointer(_ context.Context, namespace, regularId string) error {
	if p, ok := f.pointers[namespace]; ok && p.RegularId.String == regularId {
		delete(f.pointers, namespace)
	}
	return nil
}

func (f *fakeMeta) ListCollections(_ context.Context) ([]*client.CollectionRow, error) {
	var rows []*client.CollectionRow
	for _, row := range f.collections {
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeMeta) ListModels(_ context.Context) ([]v1.EmbeddingModel, error) {
	var models []v1.EmbeddingModel
	for _, m := range f.models {
		models = append(models, m)
	}
	return models, nil
}

func (f *fakeMeta) GetBluePointer(_ context.Context, namespace string) (*client.BluePointerRow, error) {
	return f.pointers[namespace], nil
}

func (f *fakeMeta) SetBluePointer(_ context.Context, namespace, regularId, queryId string) error {
	f.pointers[namespace] = &client.BluePointerRow{
		Namespace: namespace,
		RegularId: sql.NullString{String: regularId, Valid: true},
		QueryId:   sql.NullString{String: queryId, Valid: true},
	}
	return nil
}

// fakeSchema records DDL calls.
type fakeSchema struct {
	tables  map[string]bool
	indexes map[string]bool
}

func newFakeSchema() *fakeSchema {
	return &fakeSchema{tables: map[string]bool{}, indexes: map[string]bool{}}
}

func (f *fakeSchema) CreateTables(_ context.Context, info *v1.CollectionInfo) error {
	f.tables[collKey(info.CollectionId, info.Kind)] = true
	return nil
}

func (f *fakeSchema) DropTables(_ context.Context, collectionId string, kind v1.CollectionKind) error {
	delete(f.tables, collKey(collectionId, kind))
	return nil
}

func (f *fakeSchema) CreateIndex(_ context.Context, info *v1.CollectionInfo) error {
	f.indexes[collKey(info.CollectionId, info.Kind)] = true
	return nil
}

func testModel(id string) *v1.EmbeddingModel {
	return &v1.EmbeddingModel{
		EmbeddingModelId: id,
		PluginName:       "demo_plugin",
		Dimensions:       3,
		MetricType:       v1.MetricCosine,
		AggregationType:  v1.AggregationAvg,
		Hnsw:             v1.HnswParams{M: 16, EfConstruction: 100},
	}
}

func testManager() (*Manager, *fakeMeta, *fakeSchema) {
	meta := newFakeMeta()
	schema := newFakeSchema()
	c := cache.New(meta)
	return NewManager(meta, c, schema), meta, schema
}

func TestCreatePair(t *testing.T) {
	ctx := context.Background()
	m, meta, schema := testManager()

	info, err := m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)
	assert.Equal(t, info.Kind, v1.KindRegular)
	assert.Equal(t, info.WorkState, v1.WorkStateGreen)
	assert.Equal(t, len(meta.collections), 2)
	assert.Equal(t, len(schema.tables), 2)

	// idempotent
	_, err = m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)
	assert.Equal(t, len(meta.collections), 2)
}

func TestCreatePairInvalidModel(t *testing.T) {
	m, _, _ := testManager()
	bad := testModel("m1")
	bad.Dimensions = 0
	_, err := m.CreatePair(context.Background(), bad, v1.NamespaceDefault)
	assert.Assert(t, avserrors.IsValidation(err))
}

func TestCreateIndex(t *testing.T) {
	ctx := context.Background()
	m, meta, schema := testManager()
	_, err := m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)

	assert.NilError(t, m.CreateIndex(ctx, "m1", v1.NamespaceDefault))
	assert.Equal(t, len(schema.indexes), 2)
	assert.Equal(t, meta.collections[collKey("m1", v1.KindRegular)].IndexCreated, true)
}

func TestPromoteAndDeleteBlue(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testManager()
	_, err := m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)
	_, err = m.CreatePair(ctx, testModel("m2"), v1.NamespaceDefault)
	assert.NilError(t, err)

	assert.NilError(t, m.PromoteToBlue(ctx, "m1", v1.NamespaceDefault))
	err = m.DeletePair(ctx, "m1", v1.NamespaceDefault)
	assert.Assert(t, avserrors.IsConflict(err))

	// promoting m2 demotes m1, which then deletes cleanly
	assert.NilError(t, m.PromoteToBlue(ctx, "m2", v1.NamespaceDefault))
	assert.NilError(t, m.DeletePair(ctx, "m1", v1.NamespaceDefault))
}

func TestDeleteLastPairRemovesModel(t *testing.T) {
	ctx := context.Background()
	m, meta, _ := testManager()
	_, err := m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)

	assert.NilError(t, m.DeletePair(ctx, "m1", v1.NamespaceDefault))
	_, ok := meta.models["m1"]
	assert.Equal(t, ok, false)
}

func TestDeleteMissingPair(t *testing.T) {
	m, _, _ := testManager()
	err := m.DeletePair(context.Background(), "missing", v1.NamespaceDefault)
	assert.Assert(t, avserrors.IsNotFound(err))
}

func TestCategoriesNamespaceIsIndependent(t *testing.T) {
	ctx := context.Background()
	m, meta, _ := testManager()
	_, err := m.CreatePair(ctx, testModel("m1"), v1.NamespaceDefault)
	assert.NilError(t, err)
	_, err = m.CreatePair(ctx, testModel("m1"), v1.NamespaceCategories)
	assert.NilError(t, err)
	assert.Equal(t, len(meta.collections), 4)

	// deleting the default pair keeps the model alive for the categories pair
	assert.NilError(t, m.DeletePair(ctx, "m1", v1.NamespaceDefault))
	_, ok := meta.models["m1"]
	assert.Equal(t, ok, true)
}
