/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/httpclient"
)

// Interface is the remote evaluator hosted by the inference server.
type Interface interface {
	IsModelReady(ctx context.Context, pluginName, modelId string) (bool, error)
	ForwardQuery(ctx context.Context, pluginName, modelId, query string) ([]float32, error)
	ForwardItems(ctx context.Context, pluginName, modelId string, items []map[string]interface{}) ([][]float32, error)
}

type client struct {
	endpoint string
	http     httpclient.Interface
}

// NewClient returns a dispatcher against the configured inference endpoint.
func NewClient() Interface {
	return &client{
		endpoint: config.GetInferenceEndpoint(),
		http:     httpclient.NewHttpClient(),
	}
}

// NewClientWithEndpoint is used by tests to point at an httptest server.
func NewClientWithEndpoint(endpoint string) Interface {
	return &client{
		endpoint: endpoint,
		http:     httpclient.NewHttpClient(),
	}
}

func (c *client) modelUrl(pluginName, modelId, op string) string {
	return fmt.Sprintf("%s/v1/plugins/%s/models/%s/%s", c.endpoint, pluginName, modelId, op)
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Vector []float32 `json:"vector"`
}

type itemsRequest struct {
	Items []map[string]interface{} `json:"items"`
}

type itemsResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

func (c *client) IsModelReady(ctx context.Context, pluginName, modelId string) (bool, error) {
	result, err := c.http.Get(c.modelUrl(pluginName, modelId, "ready"))
	if err != nil {
		return false, avserrors.NewUnavailable(fmt.Sprintf("inference server unreachable: %v", err))
	}
	if result.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if !result.IsSuccess() {
		return false, avserrors.NewUnavailable(result.String())
	}
	var rsp readyResponse
	if err = json.Unmarshal(result.Body, &rsp); err != nil {
		return false, err
	}
	return rsp.Ready, nil
}

func (c *client) ForwardQuery(ctx context.Context, pluginName, modelId, query string) ([]float32, error) {
	result, err := c.http.Post(c.modelUrl(pluginName, modelId, "forward-query"), &queryRequest{Query: query})
	if err != nil {
		return nil, avserrors.NewUnavailable(fmt.Sprintf("inference server unreachable: %v", err))
	}
	if result.StatusCode == http.StatusNotFound {
		return nil, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
	}
	if !result.IsSuccess() {
		return nil, avserrors.NewUnavailable(result.String())
	}
	var rsp queryResponse
	if err = json.Unmarshal(result.Body, &rsp); err != nil {
		return nil, err
	}
	return rsp.Vector, nil
}

func (c *client) ForwardItems(ctx context.Context, pluginName, modelId string, items []map[string]interface{}) ([][]float32, error) {
	result, err := c.http.Post(c.modelUrl(pluginName, modelId, "forward-items"), &itemsRequest{Items: items})
	if err != nil {
		return nil, avserrors.NewUnavailable(fmt.Sprintf("inference server unreachable: %v", err))
	}
	if result.StatusCode == http.StatusNotFound {
		return nil, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
	}
	if !result.IsSuccess() {
		return nil, avserrors.NewUnavailable(result.String())
	}
	var rsp itemsResponse
	if err = json.Unmarshal(result.Body, &rsp); err != nil {
		return nil, err
	}
	if len(rsp.Vectors) != len(items) {
		return nil, avserrors.NewInternalError(fmt.Sprintf(
			"inference returned %d vectors for %d items", len(rsp.Vectors), len(items)))
	}
	return rsp.Vectors, nil
}
