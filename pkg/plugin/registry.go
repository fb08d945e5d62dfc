/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package plugin

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

// SearchIndexInfo declares how a plugin's collections are indexed.
type SearchIndexInfo struct {
	MetricType      v1.MetricType
	AggregationType v1.AggregationType
	Hnsw            v1.HnswParams
}

// Adjuster repositions vectors from clickstream feedback. Implementations
// must move clicked vectors toward the query and non-clicked vectors away
// under the given metric.
type Adjuster interface {
	Adjust(inputs []*v1.ImprovementInput, metric v1.MetricType) error
}

// Plugin is the capability set bound to one plugin name. The core never
// reflects on plugin internals; it looks the plugin up by name and
// dispatches through this interface.
type Plugin interface {
	Name() string
	// BuildEmbeddingInput turns an upsertion item into the inference
	// request body for one item.
	BuildEmbeddingInput(item *v1.UpsertionItem) (map[string]interface{}, error)
	// Adjuster returns the plugin's vector adjuster, nil to use the
	// platform default.
	Adjuster() Adjuster
	SearchIndexInfo() SearchIndexInfo
}

var (
	mux      sync.RWMutex
	registry = map[string]Plugin{}
)

// Register adds a plugin under its name. A duplicate name is rejected.
func Register(p Plugin) error {
	mux.Lock()
	defer mux.Unlock()
	name := p.Name()
	if !v1.IsValidPluginName(name) {
		return avserrors.NewBadRequest(fmt.Sprintf("invalid plugin name %q", name))
	}
	if _, ok := registry[name]; ok {
		return avserrors.NewAlreadyExist(fmt.Sprintf("plugin %s already registered", name))
	}
	registry[name] = p
	klog.Infof("registered plugin %s", name)
	return nil
}

// Get looks a plugin up by name.
func Get(name string) (Plugin, error) {
	mux.RLock()
	defer mux.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, avserrors.NewNotFoundWithMessage(fmt.Sprintf("plugin %s not registered", name))
	}
	return p, nil
}

// List returns the registered plugin names.
func List() []string {
	mux.RLock()
	defer mux.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Reset drops every registration. Intended for tests.
func Reset() {
	mux.Lock()
	defer mux.Unlock()
	registry = map[string]Plugin{}
}
