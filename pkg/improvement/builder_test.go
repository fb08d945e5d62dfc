/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package improvement

import (
	"context"
	"database/sql"
	"testing"

	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

type fakeMetaStore struct {
	rows    []*client.CollectionRow
	models  []v1.EmbeddingModel
	blue    string
	blueSet bool
}

func (f *fakeMetaStore) ListCollections(_ context.Context) ([]*client.CollectionRow, error) {
	return f.rows, nil
}

func (f *fakeMetaStore) ListModels(_ context.Context) ([]v1.EmbeddingModel, error) {
	return f.models, nil
}

func (f *fakeMetaStore) GetBluePointer(_ context.Context, namespace string) (*client.BluePointerRow, error) {
	if namespace != v1.NamespaceDefault || !f.blueSet {
		return nil, nil
	}
	return &client.BluePointerRow{
		Namespace: namespace,
		RegularId: sql.NullString{String: f.blue, Valid: true},
		QueryId:   sql.NullString{String: f.blue, Valid: true},
	}, nil
}

func (f *fakeMetaStore) SetBluePointer(_ context.Context, _, regularId, _ string) error {
	f.blue = regularId
	f.blueSet = true
	return nil
}

type fakeEvents struct {
	events map[string][]*client.EventRow
}

func (f *fakeEvents) ListSessionEvents(_ context.Context, sessionId string, _ int) ([]*client.EventRow, error) {
	return f.events[sessionId], nil
}

type fakeFinder struct {
	// keyed by collection kind then object/session id
	byId        map[v1.CollectionKind]map[string]v1.Object
	bySessionId map[v1.CollectionKind]map[string]v1.Object
}

func (f *fakeFinder) FindByIds(_ context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error) {
	var result []v1.Object
	for _, id := range objectIds {
		if object, ok := f.byId[info.Kind][id]; ok {
			result = append(result, object)
		}
	}
	return result, nil
}

func (f *fakeFinder) FindBySessionIds(_ context.Context, info *v1.CollectionInfo, sessionIds []string) ([]v1.Object, error) {
	var result []v1.Object
	for _, id := range sessionIds {
		if object, ok := f.bySessionId[info.Kind][id]; ok {
			result = append(result, object)
		}
	}
	return result, nil
}

func blueCache(t *testing.T) *cache.Cache {
	t.Helper()
	model := v1.EmbeddingModel{
		EmbeddingModelId: "m1",
		PluginName:       "default_text",
		Dimensions:       3,
		MetricType:       v1.MetricCosine,
		AggregationType:  v1.AggregationAvg,
	}
	store := &fakeMetaStore{
		rows: []*client.CollectionRow{
			{CollectionId: "m1", Kind: string(v1.KindRegular), EmbeddingModelId: "m1"},
			{CollectionId: "m1", Kind: string(v1.KindQuery), EmbeddingModelId: "m1"},
		},
		models:  []v1.EmbeddingModel{model},
		blue:    "m1",
		blueSet: true,
	}
	c := cache.New(store)
	assert.NilError(t, c.Reload(context.Background()))
	return c
}

func sessionRow(sessionId, userId string, results []v1.SessionResult) *client.SessionRow {
	return &client.SessionRow{
		SessionId: sessionId,
		BatchId:   "b1",
		Results:   client.MarshalJsonColumn(results),
		UserId:    dbutils.NullString(userId),
	}
}

func testBuilder(t *testing.T) (*Builder, *fakeEvents, *fakeFinder) {
	events := &fakeEvents{events: map[string][]*client.EventRow{}}
	finder := &fakeFinder{
		byId: map[v1.CollectionKind]map[string]v1.Object{
			v1.KindRegular: {
				"p": {ObjectId: "p", Parts: []v1.ObjectPart{{PartId: "p_0", Vector: []float32{0, 1, 0}}}},
				"n": {ObjectId: "n", Parts: []v1.ObjectPart{{PartId: "n_0", Vector: []float32{1, 1, 0}}}},
			},
		},
		bySessionId: map[v1.CollectionKind]map[string]v1.Object{
			v1.KindQuery: {
				"s1": {ObjectId: "q_s1", SessionId: "s1", Parts: []v1.ObjectPart{{PartId: "q_0", Vector: []float32{1, 0, 0}}}},
			},
		},
	}
	return NewBuilder(events, blueCache(t), finder), events, finder
}

func TestBuildInputs(t *testing.T) {
	ctx := context.Background()
	b, events, _ := testBuilder(t)
	events.events["s1"] = []*client.EventRow{{EventId: "e1", SessionId: "s1", ObjectId: "p"}}

	results := []v1.SessionResult{{ObjectId: "p", Rank: 1}, {ObjectId: "n", Rank: 2}}
	inputs, consumed, err := b.BuildInputs(ctx, []*client.SessionRow{sessionRow("s1", "u1", results)})
	assert.NilError(t, err)
	assert.DeepEqual(t, consumed, []string{"s1"})
	assert.Equal(t, len(inputs), 1)

	input := inputs[0]
	assert.DeepEqual(t, input.QueryVector, []float32{1, 0, 0})
	assert.Equal(t, len(input.Clicked), 1)
	assert.Equal(t, input.Clicked[0].ObjectId, "p")
	assert.Equal(t, input.Clicked[0].UserId, "u1")
	assert.Equal(t, len(input.NonClicked), 1)
	assert.Equal(t, input.NonClicked[0].ObjectId, "n")
}

func TestBuildInputsPrefersUserCopies(t *testing.T) {
	ctx := context.Background()
	b, events, finder := testBuilder(t)
	events.events["s1"] = []*client.EventRow{{EventId: "e1", SessionId: "s1", ObjectId: "p"}}
	finder.byId[v1.KindRegular]["p_u1"] = v1.Object{
		ObjectId:   "p_u1",
		OriginalId: "p",
		UserId:     "u1",
		Parts:      []v1.ObjectPart{{PartId: "p_u1_p0", Vector: []float32{0.5, 0.5, 0}}},
	}

	results := []v1.SessionResult{{ObjectId: "p", Rank: 1}}
	inputs, _, err := b.BuildInputs(ctx, []*client.SessionRow{sessionRow("s1", "u1", results)})
	assert.NilError(t, err)
	assert.Equal(t, len(inputs), 1)
	assert.DeepEqual(t, inputs[0].Clicked[0].Vectors[0], []float32{0.5, 0.5, 0})
}

func TestBuildInputsSkipsUnusableSessions(t *testing.T) {
	ctx := context.Background()
	b, events, _ := testBuilder(t)
	events.events["clicked"] = []*client.EventRow{{EventId: "e1", ObjectId: "p"}}

	results := []v1.SessionResult{{ObjectId: "p", Rank: 1}}
	anonymous := sessionRow("anon", "", results)
	noClicks := sessionRow("quiet", "u1", results)
	irrelevant := sessionRow("irr", "u1", results)
	irrelevant.IsIrrelevant = true

	inputs, consumed, err := b.BuildInputs(ctx, []*client.SessionRow{anonymous, noClicks, irrelevant})
	assert.NilError(t, err)
	assert.Equal(t, len(inputs), 0)
	assert.Equal(t, len(consumed), 3)
}

func TestBuildInputsNoBlue(t *testing.T) {
	events := &fakeEvents{events: map[string][]*client.EventRow{}}
	c := cache.New(&fakeMetaStore{})
	b := NewBuilder(events, c, &fakeFinder{})
	_, _, err := b.BuildInputs(context.Background(), nil)
	assert.Assert(t, avserrors.IsNotFound(err))
}

func TestWritebackObjects(t *testing.T) {
	inputs := []*v1.ImprovementInput{{
		SessionId:   "s1",
		QueryVector: []float32{1, 0, 0},
		Clicked: []v1.ImprovementElement{{
			ObjectId:  "p",
			UserId:    "u1",
			Vectors:   [][]float32{{0.9, 0.1, 0}},
			IsAverage: []bool{true},
		}},
		NonClicked: []v1.ImprovementElement{{
			ObjectId: "n",
			UserId:   "u1",
			Vectors:  [][]float32{{0, 0, 1}},
		}},
	}}

	objects, lockIds := WritebackObjects(inputs)
	assert.Equal(t, len(objects), 2)
	assert.Equal(t, len(lockIds), 2)

	byId := map[string]v1.Object{}
	for _, object := range objects {
		byId[object.ObjectId] = object
	}
	copied := byId["p_u1"]
	assert.Equal(t, copied.OriginalId, "p")
	assert.Equal(t, copied.UserId, "u1")
	assert.Equal(t, len(copied.Parts), 1)
	assert.Equal(t, copied.Parts[0].PartId, "p_u1_p0")
	assert.Equal(t, copied.Parts[0].IsAverage, true)
}
