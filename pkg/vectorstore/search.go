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
	"github.com/pgvector/pgvector-go"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// SimilarQuery carries the parameters of one ANN search.
type SimilarQuery struct {
	Vector          []float32
	Limit           int
	Offset          int
	MaxDistance     *float64
	Filter          *v1.PayloadFilter
	SortBy          *v1.SortBy
	UserId          string
	WithVectors     bool
	SimilarityFirst bool
	Meta            bool
}

type searchRow struct {
	ObjectId    string         `db:"object_id"`
	Distance    float64        `db:"distance"`
	Payload     []byte         `db:"payload"`
	StorageMeta []byte         `db:"storage_meta"`
	OriginalId  sql.NullString `db:"original_id"`
	UserId      sql.NullString `db:"user_id"`
}

// FindSimilar runs the ANN search. An object's distance is the collection's
// aggregation applied over its parts. Personalized copies shadow their
// originals for the querying user; max_distance prunes in SQL before
// ordering regardless of the similarity_first mode.
func (s *Store) FindSimilar(ctx context.Context, info *v1.CollectionInfo, q *SimilarQuery) ([]v1.SearchResult, error) {
	if len(q.Vector) != info.EmbeddingModel.Dimensions {
		return nil, avserrors.NewDimensionMismatch(fmt.Sprintf(
			"query vector has dimension %d, collection %s expects %d",
			len(q.Vector), info.CollectionId, info.EmbeddingModel.Dimensions))
	}
	op := distanceOp(info.EmbeddingModel.MetricType)
	agg := aggFunc(info.EmbeddingModel.AggregationType)
	qvec := pgvector.NewVector(q.Vector)

	// per-object distance aggregated over parts
	inner := sqrl.Select("p.object_id").
		Column(sqrl.Expr(fmt.Sprintf("%s(p.vector %s ?) AS distance", agg, op), qvec)).
		From(PartTable(info.CollectionId, info.Kind) + " p").
		GroupBy("p.object_id")
	if q.MaxDistance != nil {
		inner = inner.Having(fmt.Sprintf("%s(p.vector %s ?) <= ?", agg, op), qvec, *q.MaxDistance)
	}

	// personalized copies shadow originals; other users' copies are hidden
	mid := sqrl.Select(
		"o.object_id", "d.distance", "o.payload", "o.storage_meta", "o.original_id", "o.user_id").
		Options("DISTINCT ON (COALESCE(o.original_id, o.object_id))").
		FromSelect(inner, "d").
		Join(fmt.Sprintf("%s o ON o.object_id = d.object_id", ObjectTable(info.CollectionId, info.Kind))).
		OrderBy("COALESCE(o.original_id, o.object_id)", "(o.user_id IS NOT NULL) DESC")
	if q.UserId != "" {
		mid = mid.Where(sqrl.Or{sqrl.Eq{"o.user_id": nil}, sqrl.Eq{"o.user_id": q.UserId}})
	} else {
		mid = mid.Where(sqrl.Eq{"o.original_id": nil})
	}
	if q.Filter != nil {
		pred, err := BuildFilter(q.Filter)
		if err != nil {
			return nil, err
		}
		mid = mid.Where(pred)
	}

	orderBy, err := finalOrdering(q.SortBy, q.SimilarityFirst)
	if err != nil {
		return nil, err
	}
	outer := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		FromSelect(mid, "c").
		OrderBy(orderBy...).
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset))
	querySql, args, err := outer.ToSql()
	if err != nil {
		return nil, err
	}
	rows := []*searchRow{}
	if err = s.db.SelectContext(ctx, &rows, querySql, args...); err != nil {
		return nil, err
	}
	results := make([]v1.SearchResult, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		result := v1.SearchResult{
			ObjectId: row.ObjectId,
			Distance: row.Distance,
		}
		if len(row.Payload) > 0 {
			_ = json.Unmarshal(row.Payload, &result.Payload)
		}
		if q.Meta && len(row.StorageMeta) > 0 {
			_ = json.Unmarshal(row.StorageMeta, &result.Meta)
		}
		results = append(results, result)
		ids = append(ids, row.ObjectId)
	}
	if q.WithVectors && len(ids) > 0 {
		partsById, err := s.loadParts(ctx, info, ids)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Vectors = partsById[results[i].ObjectId]
		}
	}
	return results, nil
}

// finalOrdering renders the outer ORDER BY. Distance always participates:
// it is the primary key in similarity-first mode and the tie breaker behind
// the payload sort otherwise.
func finalOrdering(sortBy *v1.SortBy, similarityFirst bool) ([]string, error) {
	if similarityFirst || sortBy == nil {
		return []string{"distance", "object_id"}, nil
	}
	col, err := columnRef(sortBy.Field, sortBy.ForceNotPayload)
	if err != nil {
		return nil, err
	}
	direction := "ASC"
	if sortBy.Descending {
		direction = "DESC"
	}
	return []string{fmt.Sprintf("%s %s", col, direction), "distance", "object_id"}, nil
}

// FindByPayload returns matching objects without any vector math.
func (s *Store) FindByPayload(ctx context.Context, info *v1.CollectionInfo, filter *v1.PayloadFilter, limit, offset int, sortBy *v1.SortBy) ([]v1.Object, error) {
	pred, err := BuildFilter(filter)
	if err != nil {
		return nil, err
	}
	builder := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(ObjectTable(info.CollectionId, info.Kind)).
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if pred != nil {
		builder = builder.Where(pred)
	}
	if sortBy != nil {
		col, err := columnRef(sortBy.Field, sortBy.ForceNotPayload)
		if err != nil {
			return nil, err
		}
		direction := "ASC"
		if sortBy.Descending {
			direction = "DESC"
		}
		builder = builder.OrderBy(fmt.Sprintf("%s %s", col, direction), "object_id")
	} else {
		builder = builder.OrderBy("object_id")
	}
	querySql, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows := []*objectRow{}
	if err = s.db.SelectContext(ctx, &rows, querySql, args...); err != nil {
		return nil, err
	}
	objects := make([]v1.Object, 0, len(rows))
	for _, row := range rows {
		objects = append(objects, row.toObject())
	}
	return objects, nil
}

// CountByPayload returns the number of objects matching the filter.
func (s *Store) CountByPayload(ctx context.Context, info *v1.CollectionInfo, filter *v1.PayloadFilter) (int64, error) {
	pred, err := BuildFilter(filter)
	if err != nil {
		return 0, err
	}
	builder := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).
		From(ObjectTable(info.CollectionId, info.Kind))
	if pred != nil {
		builder = builder.Where(pred)
	}
	querySql, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.GetContext(ctx, &count, querySql, args...)
	return count, err
}
