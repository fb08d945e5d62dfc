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
	TModel = "embedding_model"
)

var (
	getModelCmd     = fmt.Sprintf(`SELECT * FROM %s WHERE embedding_model_id = $1 LIMIT 1`, TModel)
	listModelsCmd   = fmt.Sprintf(`SELECT * FROM %s ORDER BY embedding_model_id`, TModel)
	deleteModelCmd  = fmt.Sprintf(`DELETE FROM %s WHERE embedding_model_id = $1`, TModel)
	insertModelFmt  = `INSERT INTO ` + TModel + ` (%s) VALUES (%s) ON CONFLICT (embedding_model_id) DO NOTHING`
)

func (c *Client) GetModel(ctx context.Context, modelId string) (*v1.EmbeddingModel, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*ModelRow{}
	if err = db.SelectContext(ctx, &rows, getModelCmd, modelId); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
	}
	model := rows[0].ToModel()
	return &model, nil
}

func (c *Client) ListModels(ctx context.Context) ([]v1.EmbeddingModel, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*ModelRow{}
	if err = db.SelectContext(ctx, &rows, listModelsCmd); err != nil {
		return nil, err
	}
	models := make([]v1.EmbeddingModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, row.ToModel())
	}
	return models, nil
}

// UpsertModel inserts the model row if absent. An existing row wins, matching
// the implicit-create semantics of collection creation.
func (c *Client) UpsertModel(ctx context.Context, model *v1.EmbeddingModel) error {
	if model == nil {
		return nil
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	row := &ModelRow{
		EmbeddingModelId:   model.EmbeddingModelId,
		PluginName:         model.PluginName,
		Dimensions:         model.Dimensions,
		MetricType:         string(model.MetricType),
		AggregationType:    string(model.AggregationType),
		HnswM:              model.Hnsw.M,
		HnswEfConstruction: model.Hnsw.EfConstruction,
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*row, insertModelFmt, "id"), row)
	if err != nil {
		klog.ErrorS(err, "failed to insert model db", "id", model.EmbeddingModelId)
		return err
	}
	return nil
}

func (c *Client) DeleteModel(ctx context.Context, modelId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, deleteModelCmd, modelId); err != nil {
		klog.ErrorS(err, "failed to delete model db", "id", modelId)
		return err
	}
	return nil
}
