/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
)

// Store drives the per-collection object and part tables. Table names are a
// deterministic function of the collection id and kind.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func kindSuffix(kind v1.CollectionKind) string {
	switch kind {
	case v1.KindRegular:
		return "r"
	case v1.KindQuery:
		return "q"
	case v1.KindCategoriesRegular:
		return "cr"
	case v1.KindCategoriesQuery:
		return "cq"
	}
	return "x"
}

func sanitizeId(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ObjectTable returns the objects table name of a collection.
func ObjectTable(collectionId string, kind v1.CollectionKind) string {
	return fmt.Sprintf("avs_obj_%s_%s", sanitizeId(collectionId), kindSuffix(kind))
}

// PartTable returns the parts table name of a collection.
func PartTable(collectionId string, kind v1.CollectionKind) string {
	return fmt.Sprintf("avs_part_%s_%s", sanitizeId(collectionId), kindSuffix(kind))
}

// distanceOp maps the metric to the pgvector distance operator. The dot
// operator yields the negated inner product, so ascending order still means
// most similar first for every metric.
func distanceOp(metric v1.MetricType) string {
	switch metric {
	case v1.MetricDot:
		return "<#>"
	case v1.MetricEuclid:
		return "<->"
	default:
		return "<=>"
	}
}

func indexOpClass(metric v1.MetricType) string {
	switch metric {
	case v1.MetricDot:
		return "vector_ip_ops"
	case v1.MetricEuclid:
		return "vector_l2_ops"
	default:
		return "vector_cosine_ops"
	}
}

func aggFunc(aggregation v1.AggregationType) string {
	if aggregation == v1.AggregationMin {
		return "MIN"
	}
	return "AVG"
}

// CreateTables provisions the object and part tables of a collection. The
// statements are idempotent.
func (s *Store) CreateTables(ctx context.Context, info *v1.CollectionInfo) error {
	objects := ObjectTable(info.CollectionId, info.Kind)
	parts := PartTable(info.CollectionId, info.Kind)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			object_id TEXT PRIMARY KEY,
			payload JSONB,
			storage_meta JSONB,
			original_id TEXT,
			user_id TEXT,
			session_id TEXT
		)`, objects),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			part_id TEXT PRIMARY KEY,
			object_id TEXT NOT NULL REFERENCES %s (object_id) ON DELETE CASCADE,
			vector vector(%d) NOT NULL,
			is_average BOOLEAN NOT NULL DEFAULT FALSE,
			user_id TEXT
		)`, parts, objects, info.EmbeddingModel.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_object ON %s (object_id)`, parts, parts),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_original_user ON %s (original_id, user_id)
			WHERE original_id IS NOT NULL AND user_id IS NOT NULL`, objects, objects),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s (session_id)`, objects, objects),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			klog.ErrorS(err, "failed to create vector tables", "collection", info.CollectionId, "kind", info.Kind)
			return err
		}
	}
	return nil
}

// DropTables removes a collection's physical tables.
func (s *Store) DropTables(ctx context.Context, collectionId string, kind v1.CollectionKind) error {
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, PartTable(collectionId, kind)),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ObjectTable(collectionId, kind)),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndex builds the HNSW index on the parts table with the model's
// parameters. CREATE INDEX IF NOT EXISTS keeps the call idempotent.
func (s *Store) CreateIndex(ctx context.Context, info *v1.CollectionInfo) error {
	parts := PartTable(info.CollectionId, info.Kind)
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_hnsw ON %s USING hnsw (vector %s) WITH (m = %d, ef_construction = %d)`,
		parts, parts, indexOpClass(info.EmbeddingModel.MetricType),
		info.EmbeddingModel.Hnsw.M, info.EmbeddingModel.Hnsw.EfConstruction)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		klog.ErrorS(err, "failed to create hnsw index", "collection", info.CollectionId, "kind", info.Kind)
		return err
	}
	return nil
}

const (
	OptimizationPayloadIndex = "payload-gin-index"
	OptimizationAnalyze      = "analyze"
)

// Optimizations is the ordered set of named post-hoc optimizations applied
// to a collection after bulk loads.
var Optimizations = []string{OptimizationPayloadIndex, OptimizationAnalyze}

// ApplyOptimization runs one named optimization on the collection's tables.
func (s *Store) ApplyOptimization(ctx context.Context, info *v1.CollectionInfo, name string) error {
	objects := ObjectTable(info.CollectionId, info.Kind)
	parts := PartTable(info.CollectionId, info.Kind)
	var stmt string
	switch name {
	case OptimizationPayloadIndex:
		stmt = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_payload ON %s USING gin (payload)`, objects, objects)
	case OptimizationAnalyze:
		stmt = fmt.Sprintf(`ANALYZE %s; ANALYZE %s`, objects, parts)
	default:
		return fmt.Errorf("unknown optimization %q", name)
	}
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}
