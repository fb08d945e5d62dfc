/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

const (
	TCollection  = "collection"
	TBluePointer = "blue_pointer"
)

var (
	listCollectionsCmd = fmt.Sprintf(`SELECT * FROM %s ORDER BY collection_id, kind`, TCollection)
	getCollectionCmd   = fmt.Sprintf(`SELECT * FROM %s WHERE collection_id = $1 AND kind = $2 LIMIT 1`, TCollection)
	insertCollFmt      = `INSERT INTO ` + TCollection + ` (%s) VALUES (%s) ON CONFLICT (collection_id, kind) DO NOTHING`
	deleteCollCmd      = fmt.Sprintf(`DELETE FROM %s WHERE collection_id = $1 AND kind = $2`, TCollection)
	markIndexCmd       = fmt.Sprintf(`UPDATE %s SET index_created = TRUE, update_time = now()
		WHERE collection_id = $1 AND kind = $2`, TCollection)
	setOptimizationsCmd = fmt.Sprintf(`UPDATE %s SET applied_optimizations = $3, update_time = now()
		WHERE collection_id = $1 AND kind = $2`, TCollection)

	getBluePointerCmd  = fmt.Sprintf(`SELECT * FROM %s WHERE namespace = $1 LIMIT 1`, TBluePointer)
	setBluePointerCmd  = fmt.Sprintf(`INSERT INTO %s (namespace, regular_id, query_id, update_time)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace) DO UPDATE
		SET regular_id = EXCLUDED.regular_id, query_id = EXCLUDED.query_id, update_time = now()`, TBluePointer)
	clearBluePointerCmd = fmt.Sprintf(`UPDATE %s SET regular_id = NULL, query_id = NULL, update_time = now()
		WHERE namespace = $1 AND regular_id = $2`, TBluePointer)
)

func (c *Client) ListCollections(ctx context.Context) ([]*CollectionRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*CollectionRow{}
	if err = db.SelectContext(ctx, &rows, listCollectionsCmd); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetCollection(ctx context.Context, collectionId string, kind v1.CollectionKind) (*CollectionRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*CollectionRow{}
	if err = db.SelectContext(ctx, &rows, getCollectionCmd, collectionId, string(kind)); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, avserrors.NewNotFound(avserrors.CollectionKindName, collectionId)
	}
	return rows[0], nil
}

// InsertCollection records the collection. A duplicate insert keeps the
// existing row, so pair creation is idempotent.
func (c *Client) InsertCollection(ctx context.Context, collectionId string, kind v1.CollectionKind, modelId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	row := &CollectionRow{
		CollectionId:     collectionId,
		Kind:             string(kind),
		EmbeddingModelId: modelId,
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*row, insertCollFmt, "id"), row)
	if err != nil {
		klog.ErrorS(err, "failed to insert collection db", "id", collectionId, "kind", kind)
		return err
	}
	return nil
}

func (c *Client) DeleteCollection(ctx context.Context, collectionId string, kind v1.CollectionKind) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, deleteCollCmd, collectionId, string(kind)); err != nil {
		klog.ErrorS(err, "failed to delete collection db", "id", collectionId, "kind", kind)
		return err
	}
	return nil
}

func (c *Client) MarkIndexCreated(ctx context.Context, collectionId string, kind v1.CollectionKind) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, markIndexCmd, collectionId, string(kind))
	return err
}

func (c *Client) SetAppliedOptimizations(ctx context.Context, collectionId string, kind v1.CollectionKind, names []string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, setOptimizationsCmd, collectionId, string(kind), MarshalJsonColumn(names))
	return err
}

// GetBluePointer returns the blue pair of a namespace, nil when no pair has
// been promoted yet.
func (c *Client) GetBluePointer(ctx context.Context, namespace string) (*BluePointerRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*BluePointerRow{}
	if err = db.SelectContext(ctx, &rows, getBluePointerCmd, namespace); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// SetBluePointer flips the blue pair of a namespace in one statement.
func (c *Client) SetBluePointer(ctx context.Context, namespace, regularId, queryId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, setBluePointerCmd, namespace, regularId, queryId); err != nil {
		klog.ErrorS(err, "failed to set blue pointer", "namespace", namespace, "regular", regularId)
		return err
	}
	return nil
}

// ClearBluePointer drops the pointer only when it still references the given
// regular collection.
func (c *Client) ClearBluePointer(ctx context.Context, namespace, regularId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, clearBluePointerCmd, namespace, regularId)
	return err
}
