/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package plugin

import (
	"testing"

	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func TestRegisterAndGet(t *testing.T) {
	Reset()
	assert.NilError(t, Register(NewDefaultPlugin()))

	p, err := Get(DefaultPluginName)
	assert.NilError(t, err)
	assert.Equal(t, p.Name(), DefaultPluginName)
	assert.Equal(t, len(List()), 1)
}

func TestRegisterDuplicate(t *testing.T) {
	Reset()
	assert.NilError(t, Register(NewDefaultPlugin()))
	err := Register(NewDefaultPlugin())
	assert.Assert(t, avserrors.IsAlreadyExist(err))
}

func TestGetUnknown(t *testing.T) {
	Reset()
	_, err := Get("missing_plugin")
	assert.Assert(t, avserrors.IsNotFound(err))
}

func TestBuildEmbeddingInput(t *testing.T) {
	p := NewDefaultPlugin()
	item := &v1.UpsertionItem{
		ObjectId: "o1",
		Payload:  map[string]interface{}{"title": "red shoes"},
	}
	input, err := p.BuildEmbeddingInput(item)
	assert.NilError(t, err)
	assert.Equal(t, input["object_id"], "o1")
	assert.Assert(t, input["payload"] != nil)
}
