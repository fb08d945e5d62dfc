/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package plugin

import (
	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
)

// DefaultPluginName backs models that declare no specialized plugin.
const DefaultPluginName = "default_text"

type defaultPlugin struct{}

// NewDefaultPlugin returns the built-in text plugin. It forwards the item's
// payload and item_info verbatim and relies on the platform adjuster.
func NewDefaultPlugin() Plugin {
	return &defaultPlugin{}
}

func (p *defaultPlugin) Name() string {
	return DefaultPluginName
}

func (p *defaultPlugin) BuildEmbeddingInput(item *v1.UpsertionItem) (map[string]interface{}, error) {
	input := map[string]interface{}{
		"object_id": item.ObjectId,
	}
	if item.Payload != nil {
		input["payload"] = item.Payload
	}
	if item.ItemInfo != nil {
		input["item_info"] = item.ItemInfo
	}
	return input, nil
}

func (p *defaultPlugin) Adjuster() Adjuster {
	return nil
}

func (p *defaultPlugin) SearchIndexInfo() SearchIndexInfo {
	return SearchIndexInfo{
		MetricType:      v1.MetricCosine,
		AggregationType: v1.AggregationAvg,
		Hnsw:            v1.HnswParams{M: 16, EfConstruction: 100},
	}
}
