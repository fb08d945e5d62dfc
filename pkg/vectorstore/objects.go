/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

type objectRow struct {
	ObjectId    string         `db:"object_id"`
	Payload     []byte         `db:"payload"`
	StorageMeta []byte         `db:"storage_meta"`
	OriginalId  sql.NullString `db:"original_id"`
	UserId      sql.NullString `db:"user_id"`
	SessionId   sql.NullString `db:"session_id"`
}

type partRow struct {
	PartId    string          `db:"part_id"`
	ObjectId  string          `db:"object_id"`
	Vector    pgvector.Vector `db:"vector"`
	IsAverage bool            `db:"is_average"`
	UserId    sql.NullString  `db:"user_id"`
}

func (r *objectRow) toObject() v1.Object {
	obj := v1.Object{
		ObjectId:   r.ObjectId,
		OriginalId: dbutils.ParseNullString(r.OriginalId),
		UserId:     dbutils.ParseNullString(r.UserId),
		SessionId:  dbutils.ParseNullString(r.SessionId),
	}
	if len(r.Payload) > 0 {
		_ = json.Unmarshal(r.Payload, &obj.Payload)
	}
	if len(r.StorageMeta) > 0 {
		_ = json.Unmarshal(r.StorageMeta, &obj.StorageMeta)
	}
	return obj
}

func (r *partRow) toPart() v1.ObjectPart {
	return v1.ObjectPart{
		PartId:    r.PartId,
		ObjectId:  r.ObjectId,
		Vector:    r.Vector.Slice(),
		IsAverage: r.IsAverage,
		UserId:    dbutils.ParseNullString(r.UserId),
	}
}

// checkDimensions validates every part vector against the model dimension
// before anything is written.
func checkDimensions(info *v1.CollectionInfo, objects []v1.Object) error {
	dims := info.EmbeddingModel.Dimensions
	for i := range objects {
		if len(objects[i].Parts) == 0 {
			return avserrors.NewValidationError(
				fmt.Sprintf("object %s has no parts", objects[i].ObjectId))
		}
		for j := range objects[i].Parts {
			if got := len(objects[i].Parts[j].Vector); got != dims {
				return avserrors.NewDimensionMismatch(fmt.Sprintf(
					"object %s part %s has dimension %d, collection %s expects %d",
					objects[i].ObjectId, objects[i].Parts[j].PartId, got, info.CollectionId, dims))
			}
		}
	}
	return nil
}

// Insert writes objects and their parts. A unique violation means the object
// was already ingested and counts as success, so both inserts use
// ON CONFLICT DO NOTHING.
func (s *Store) Insert(ctx context.Context, info *v1.CollectionInfo, objects []v1.Object) error {
	if err := checkDimensions(info, objects); err != nil {
		return err
	}
	objTable := ObjectTable(info.CollectionId, info.Kind)
	partTable := PartTable(info.CollectionId, info.Kind)
	insertObj := fmt.Sprintf(`INSERT INTO %s (object_id, payload, storage_meta, original_id, user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (object_id) DO NOTHING`, objTable)
	insertPart := fmt.Sprintf(`INSERT INTO %s (part_id, object_id, vector, is_average, user_id)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (part_id) DO NOTHING`, partTable)
	for i := range objects {
		obj := &objects[i]
		_, err := s.db.ExecContext(ctx, insertObj, obj.ObjectId,
			jsonColumn(obj.Payload), jsonColumn(obj.StorageMeta),
			dbutils.NullString(obj.OriginalId), dbutils.NullString(obj.UserId),
			dbutils.NullString(obj.SessionId))
		if err != nil {
			klog.ErrorS(err, "failed to insert object", "collection", info.CollectionId, "object", obj.ObjectId)
			return err
		}
		for j := range obj.Parts {
			part := &obj.Parts[j]
			_, err = s.db.ExecContext(ctx, insertPart, part.PartId, obj.ObjectId,
				pgvector.NewVector(part.Vector), part.IsAverage, dbutils.NullString(part.UserId))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Upsert replaces existing objects. With shrinkParts all previous parts are
// dropped first; otherwise parts merge by part_id.
func (s *Store) Upsert(ctx context.Context, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error {
	return s.upsertOn(ctx, s.db, info, objects, shrinkParts)
}

// UpsertTx is Upsert running on the caller's transaction, so writes land on
// the same connection that holds the row locks. A nil tx falls back to the
// pool.
func (s *Store) UpsertTx(ctx context.Context, tx *sqlx.Tx, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error {
	if tx == nil {
		return s.upsertOn(ctx, s.db, info, objects, shrinkParts)
	}
	return s.upsertOn(ctx, tx, info, objects, shrinkParts)
}

func (s *Store) upsertOn(ctx context.Context, ext sqlx.ExtContext, info *v1.CollectionInfo, objects []v1.Object, shrinkParts bool) error {
	if err := checkDimensions(info, objects); err != nil {
		return err
	}
	objTable := ObjectTable(info.CollectionId, info.Kind)
	partTable := PartTable(info.CollectionId, info.Kind)
	upsertObj := fmt.Sprintf(`INSERT INTO %s (object_id, payload, storage_meta, original_id, user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (object_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			storage_meta = EXCLUDED.storage_meta,
			original_id = EXCLUDED.original_id,
			user_id = EXCLUDED.user_id,
			session_id = EXCLUDED.session_id`, objTable)
	deleteParts := fmt.Sprintf(`DELETE FROM %s WHERE object_id = $1`, partTable)
	upsertPart := fmt.Sprintf(`INSERT INTO %s (part_id, object_id, vector, is_average, user_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (part_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			is_average = EXCLUDED.is_average,
			user_id = EXCLUDED.user_id`, partTable)
	for i := range objects {
		obj := &objects[i]
		_, err := ext.ExecContext(ctx, upsertObj, obj.ObjectId,
			jsonColumn(obj.Payload), jsonColumn(obj.StorageMeta),
			dbutils.NullString(obj.OriginalId), dbutils.NullString(obj.UserId),
			dbutils.NullString(obj.SessionId))
		if err != nil {
			klog.ErrorS(err, "failed to upsert object", "collection", info.CollectionId, "object", obj.ObjectId)
			return err
		}
		if shrinkParts {
			if _, err = ext.ExecContext(ctx, deleteParts, obj.ObjectId); err != nil {
				return err
			}
		}
		for j := range obj.Parts {
			part := &obj.Parts[j]
			_, err = ext.ExecContext(ctx, upsertPart, part.PartId, obj.ObjectId,
				pgvector.NewVector(part.Vector), part.IsAverage, dbutils.NullString(part.UserId))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes objects; parts cascade.
func (s *Store) Delete(ctx context.Context, info *v1.CollectionInfo, objectIds []string) error {
	if len(objectIds) == 0 {
		return nil
	}
	query, args, err := sqrl.Delete(ObjectTable(info.CollectionId, info.Kind)).
		PlaceholderFormat(sqrl.Dollar).
		Where(sqrl.Eq{"object_id": objectIds}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) findObjects(ctx context.Context, info *v1.CollectionInfo, where sqrl.Sqlizer, withVectors bool) ([]v1.Object, error) {
	query, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(ObjectTable(info.CollectionId, info.Kind)).
		Where(where).
		OrderBy("object_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows := []*objectRow{}
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	objects := make([]v1.Object, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		objects = append(objects, row.toObject())
		ids = append(ids, row.ObjectId)
	}
	if withVectors && len(ids) > 0 {
		partsById, err := s.loadParts(ctx, info, ids)
		if err != nil {
			return nil, err
		}
		for i := range objects {
			objects[i].Parts = partsById[objects[i].ObjectId]
		}
	}
	return objects, nil
}

func (s *Store) loadParts(ctx context.Context, info *v1.CollectionInfo, objectIds []string) (map[string][]v1.ObjectPart, error) {
	query, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(PartTable(info.CollectionId, info.Kind)).
		Where(sqrl.Eq{"object_id": objectIds}).
		OrderBy("part_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows := []*partRow{}
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make(map[string][]v1.ObjectPart)
	for _, row := range rows {
		result[row.ObjectId] = append(result[row.ObjectId], row.toPart())
	}
	return result, nil
}

// FindByIds returns objects with their parts.
func (s *Store) FindByIds(ctx context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error) {
	if len(objectIds) == 0 {
		return nil, nil
	}
	return s.findObjects(ctx, info, sqrl.Eq{"object_id": objectIds}, true)
}

// FindByOriginalIds returns personalized copies of the given originals.
func (s *Store) FindByOriginalIds(ctx context.Context, info *v1.CollectionInfo, originalIds []string) ([]v1.Object, error) {
	if len(originalIds) == 0 {
		return nil, nil
	}
	return s.findObjects(ctx, info, sqrl.Eq{"original_id": originalIds}, true)
}

// FindBySessionIds returns objects captured for the given search sessions.
func (s *Store) FindBySessionIds(ctx context.Context, info *v1.CollectionInfo, sessionIds []string) ([]v1.Object, error) {
	if len(sessionIds) == 0 {
		return nil, nil
	}
	return s.findObjects(ctx, info, sqrl.Eq{"session_id": sessionIds}, true)
}

// ListObjectIds enumerates object ids in stable order for batched scans.
func (s *Store) ListObjectIds(ctx context.Context, info *v1.CollectionInfo, afterId string, limit int) ([]string, error) {
	query, args, err := sqrl.Select("object_id").PlaceholderFormat(sqrl.Dollar).
		From(ObjectTable(info.CollectionId, info.Kind)).
		Where(sqrl.Gt{"object_id": afterId}).
		OrderBy("object_id").
		Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err = s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountObjects returns the number of objects in the collection.
func (s *Store) CountObjects(ctx context.Context, info *v1.CollectionInfo) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ObjectTable(info.CollectionId, info.Kind)))
	return count, err
}

// LockObjects opens a transaction holding row locks on the given objects.
// The caller must run its mutations through fn; the locks are released on
// every exit path.
func (s *Store) LockObjects(ctx context.Context, info *v1.CollectionInfo, objectIds []string, fn func(tx *sqlx.Tx) error) error {
	if len(objectIds) == 0 {
		return fn(nil)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	lockSql, args, err := sqrl.Select("object_id").PlaceholderFormat(sqrl.Dollar).
		From(ObjectTable(info.CollectionId, info.Kind)).
		Where(sqrl.Eq{"object_id": objectIds}).
		OrderBy("object_id").
		Suffix("FOR UPDATE").ToSql()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	var locked []string
	if err = tx.SelectContext(ctx, &locked, lockSql, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func jsonColumn(v map[string]interface{}) interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
