/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// Store is the slice of the metadata store the cache depends on.
type Store interface {
	ListCollections(ctx context.Context) ([]*client.CollectionRow, error)
	ListModels(ctx context.Context) ([]v1.EmbeddingModel, error)
	GetBluePointer(ctx context.Context, namespace string) (*client.BluePointerRow, error)
	SetBluePointer(ctx context.Context, namespace, regularId, queryId string) error
}

type snapshot struct {
	// keyed by collection_id + "/" + kind
	byKey map[string]v1.CollectionInfo
	// keyed by kind
	byKind map[v1.CollectionKind][]v1.CollectionInfo
	// regular collection id of the blue pair, keyed by namespace
	blue map[string]string
}

// Cache is a read-mostly projection of the collection metadata. Reads load
// the current snapshot without locking; every write goes to the store first
// and then swaps in a freshly loaded snapshot.
type Cache struct {
	store    Store
	current  atomic.Value // *snapshot
	writeMux sync.Mutex
}

func New(store Store) *Cache {
	c := &Cache{store: store}
	c.current.Store(&snapshot{
		byKey:  map[string]v1.CollectionInfo{},
		byKind: map[v1.CollectionKind][]v1.CollectionInfo{},
		blue:   map[string]string{},
	})
	return c
}

func key(collectionId string, kind v1.CollectionKind) string {
	return collectionId + "/" + string(kind)
}

// Reload rebuilds the snapshot from the metadata store.
func (c *Cache) Reload(ctx context.Context) error {
	rows, err := c.store.ListCollections(ctx)
	if err != nil {
		return err
	}
	models, err := c.store.ListModels(ctx)
	if err != nil {
		return err
	}
	modelsById := make(map[string]v1.EmbeddingModel, len(models))
	for _, m := range models {
		modelsById[m.EmbeddingModelId] = m
	}
	next := &snapshot{
		byKey:  make(map[string]v1.CollectionInfo, len(rows)),
		byKind: map[v1.CollectionKind][]v1.CollectionInfo{},
		blue:   map[string]string{},
	}
	for _, namespace := range []string{v1.NamespaceDefault, v1.NamespaceCategories} {
		pointer, err := c.store.GetBluePointer(ctx, namespace)
		if err != nil {
			return err
		}
		if pointer != nil && pointer.RegularId.Valid {
			next.blue[namespace] = pointer.RegularId.String
		}
	}
	for _, row := range rows {
		model, ok := modelsById[row.EmbeddingModelId]
		if !ok {
			klog.Warningf("collection %s references unknown model %s, skipped",
				row.CollectionId, row.EmbeddingModelId)
			continue
		}
		kind := v1.CollectionKind(row.Kind)
		isBlue := next.blue[kind.Namespace()] == row.CollectionId
		info := row.ToInfo(model, isBlue)
		next.byKey[key(row.CollectionId, kind)] = info
		next.byKind[kind] = append(next.byKind[kind], info)
	}
	c.current.Store(next)
	return nil
}

func (c *Cache) load() *snapshot {
	return c.current.Load().(*snapshot)
}

// List returns every collection of a kind.
func (c *Cache) List(kind v1.CollectionKind) []v1.CollectionInfo {
	return c.load().byKind[kind]
}

// Get returns the collection of the given id and kind.
func (c *Cache) Get(collectionId string, kind v1.CollectionKind) (v1.CollectionInfo, bool) {
	info, ok := c.load().byKey[key(collectionId, kind)]
	return info, ok
}

// GetAny returns every kind's collection sharing the id.
func (c *Cache) GetAny(collectionId string) []v1.CollectionInfo {
	var result []v1.CollectionInfo
	for _, kind := range []v1.CollectionKind{
		v1.KindRegular, v1.KindQuery, v1.KindCategoriesRegular, v1.KindCategoriesQuery,
	} {
		if info, ok := c.Get(collectionId, kind); ok {
			result = append(result, info)
		}
	}
	return result
}

// GetBlue returns the unique blue collection of the kind, nil when no pair
// has been promoted.
func (c *Cache) GetBlue(kind v1.CollectionKind) *v1.CollectionInfo {
	snap := c.load()
	blueId, ok := snap.blue[kind.Namespace()]
	if !ok {
		return nil
	}
	if info, ok := snap.byKey[key(blueId, kind)]; ok {
		return &info
	}
	return nil
}

// SetBlue promotes the pair to blue. Both collections must already exist;
// the flip is one pointer row, so readers never observe a mixed pair.
func (c *Cache) SetBlue(ctx context.Context, namespace, regularId, queryId string) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	snap := c.load()
	regular, ok := snap.byKey[key(regularId, v1.RegularKindOf(namespace))]
	if !ok {
		return avserrors.NewNotFound(avserrors.CollectionKindName, regularId)
	}
	query, ok := snap.byKey[key(queryId, v1.QueryKindOf(namespace))]
	if !ok {
		return avserrors.NewNotFound(avserrors.CollectionKindName, queryId)
	}
	if regular.EmbeddingModel.EmbeddingModelId != query.EmbeddingModel.EmbeddingModelId {
		return avserrors.NewBadRequest(fmt.Sprintf(
			"collections %s and %s belong to different models", regularId, queryId))
	}
	if err := c.store.SetBluePointer(ctx, namespace, regularId, queryId); err != nil {
		return err
	}
	return c.Reload(ctx)
}

// Invalidate reloads after an out-of-band metadata write.
func (c *Cache) Invalidate(ctx context.Context) {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	if err := c.Reload(ctx); err != nil {
		klog.ErrorS(err, "failed to reload collection cache")
	}
}
