/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/assert"

	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/plugins/demo/models/m1/ready", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(readyResponse{Ready: true})
	})
	mux.HandleFunc("/v1/plugins/demo/models/m1/forward-query", func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(queryResponse{Vector: []float32{1, 0, 0}})
	})
	mux.HandleFunc("/v1/plugins/demo/models/m1/forward-items", func(w http.ResponseWriter, r *http.Request) {
		var req itemsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float32, len(req.Items))
		for i := range vectors {
			vectors[i] = []float32{0, 1, 0}
		}
		_ = json.NewEncoder(w).Encode(itemsResponse{Vectors: vectors})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestIsModelReady(t *testing.T) {
	server := testServer(t)
	c := NewClientWithEndpoint(server.URL)

	ready, err := c.IsModelReady(context.Background(), "demo", "m1")
	assert.NilError(t, err)
	assert.Equal(t, ready, true)

	ready, err = c.IsModelReady(context.Background(), "demo", "missing")
	assert.NilError(t, err)
	assert.Equal(t, ready, false)
}

func TestForwardQuery(t *testing.T) {
	server := testServer(t)
	c := NewClientWithEndpoint(server.URL)

	vector, err := c.ForwardQuery(context.Background(), "demo", "m1", "red shoes")
	assert.NilError(t, err)
	assert.Equal(t, len(vector), 3)
}

func TestForwardQueryUnknownModel(t *testing.T) {
	server := testServer(t)
	c := NewClientWithEndpoint(server.URL)

	_, err := c.ForwardQuery(context.Background(), "demo", "missing", "q")
	assert.Assert(t, avserrors.IsNotFound(err))
}

func TestForwardItems(t *testing.T) {
	server := testServer(t)
	c := NewClientWithEndpoint(server.URL)

	vectors, err := c.ForwardItems(context.Background(), "demo", "m1",
		[]map[string]interface{}{{"object_id": "a"}, {"object_id": "b"}})
	assert.NilError(t, err)
	assert.Equal(t, len(vectors), 2)
}
