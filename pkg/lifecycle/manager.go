/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// VectorSchema is the slice of the vector store the lifecycle manager uses
// to provision and drop per-collection tables.
type VectorSchema interface {
	CreateTables(ctx context.Context, info *v1.CollectionInfo) error
	DropTables(ctx context.Context, collectionId string, kind v1.CollectionKind) error
	CreateIndex(ctx context.Context, info *v1.CollectionInfo) error
}

// MetaStore is the slice of the metadata store the manager writes through.
type MetaStore interface {
	GetModel(ctx context.Context, modelId string) (*v1.EmbeddingModel, error)
	UpsertModel(ctx context.Context, model *v1.EmbeddingModel) error
	DeleteModel(ctx context.Context, modelId string) error
	InsertCollection(ctx context.Context, collectionId string, kind v1.CollectionKind, modelId string) error
	DeleteCollection(ctx context.Context, collectionId string, kind v1.CollectionKind) error
	MarkIndexCreated(ctx context.Context, collectionId string, kind v1.CollectionKind) error
	ClearBluePointer(ctx context.Context, namespace, regularId string) error
}

// Manager drives the collection lifecycle: a REGULAR and a QUERY collection
// are created, indexed, promoted and deleted together as one model's pair.
type Manager struct {
	meta    MetaStore
	cache   *cache.Cache
	vectors VectorSchema
}

func NewManager(meta MetaStore, collectionCache *cache.Cache, vectors VectorSchema) *Manager {
	return &Manager{
		meta:    meta,
		cache:   collectionCache,
		vectors: vectors,
	}
}

func pairKinds(namespace string) []v1.CollectionKind {
	return []v1.CollectionKind{v1.RegularKindOf(namespace), v1.QueryKindOf(namespace)}
}

// CreatePair creates the model's REGULAR and QUERY collections in the given
// namespace. Existing collections are kept, so the call is idempotent. The
// embedding model row is created implicitly with its first pair.
func (m *Manager) CreatePair(ctx context.Context, model *v1.EmbeddingModel, namespace string) (*v1.CollectionInfo, error) {
	if err := model.Validate(); err != nil {
		return nil, avserrors.NewValidationError(err.Error())
	}
	if err := m.meta.UpsertModel(ctx, model); err != nil {
		return nil, err
	}
	stored, err := m.meta.GetModel(ctx, model.EmbeddingModelId)
	if err != nil {
		return nil, err
	}
	for _, kind := range pairKinds(namespace) {
		if err = m.meta.InsertCollection(ctx, stored.EmbeddingModelId, kind, stored.EmbeddingModelId); err != nil {
			return nil, err
		}
		info := &v1.CollectionInfo{
			CollectionId:   stored.EmbeddingModelId,
			Kind:           kind,
			EmbeddingModel: *stored,
		}
		if err = m.vectors.CreateTables(ctx, info); err != nil {
			return nil, err
		}
	}
	m.cache.Invalidate(ctx)
	info, ok := m.cache.Get(stored.EmbeddingModelId, v1.RegularKindOf(namespace))
	if !ok {
		return nil, avserrors.NewInternalError(fmt.Sprintf(
			"collection %s missing after creation", stored.EmbeddingModelId))
	}
	klog.Infof("created collection pair for model %s in namespace %s", stored.EmbeddingModelId, namespace)
	return &info, nil
}

// CreateIndex builds the HNSW index on both collections of the model's pair.
func (m *Manager) CreateIndex(ctx context.Context, modelId, namespace string) error {
	for _, kind := range pairKinds(namespace) {
		info, ok := m.cache.Get(modelId, kind)
		if !ok {
			return avserrors.NewNotFound(avserrors.CollectionKindName, modelId)
		}
		if err := m.vectors.CreateIndex(ctx, &info); err != nil {
			return err
		}
		if err := m.meta.MarkIndexCreated(ctx, modelId, kind); err != nil {
			return err
		}
	}
	m.cache.Invalidate(ctx)
	return nil
}

// PromoteToBlue flips the namespace's blue pointer to the model's pair. The
// demoted pair stays available for reads until it is deleted explicitly.
func (m *Manager) PromoteToBlue(ctx context.Context, modelId, namespace string) error {
	if err := m.cache.SetBlue(ctx, namespace, modelId, modelId); err != nil {
		return err
	}
	klog.Infof("promoted model %s to blue in namespace %s", modelId, namespace)
	return nil
}

// DeletePair removes the model's pair in the namespace. A blue pair cannot
// be deleted. When the last collection referencing the model goes away, the
// model row is removed too.
func (m *Manager) DeletePair(ctx context.Context, modelId, namespace string) error {
	regularKind := v1.RegularKindOf(namespace)
	if blue := m.cache.GetBlue(regularKind); blue != nil && blue.CollectionId == modelId {
		return avserrors.NewCannotDeleteBlue(modelId)
	}
	found := false
	for _, kind := range pairKinds(namespace) {
		if _, ok := m.cache.Get(modelId, kind); !ok {
			continue
		}
		found = true
		if err := m.vectors.DropTables(ctx, modelId, kind); err != nil {
			return err
		}
		if err := m.meta.DeleteCollection(ctx, modelId, kind); err != nil {
			return err
		}
	}
	if !found {
		return avserrors.NewNotFound(avserrors.CollectionKindName, modelId)
	}
	m.cache.Invalidate(ctx)
	if len(m.cache.GetAny(modelId)) == 0 {
		if err := m.meta.DeleteModel(ctx, modelId); err != nil {
			return err
		}
	}
	klog.Infof("deleted collection pair for model %s in namespace %s", modelId, namespace)
	return nil
}
