/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package improvement

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/sets"
)

// SessionSource is the slice of the metadata store the builder reads from.
type SessionSource interface {
	ListSessionEvents(ctx context.Context, sessionId string, limit int) ([]*client.EventRow, error)
}

// ObjectFinder is the slice of the vector store the builder reads from.
type ObjectFinder interface {
	FindByIds(ctx context.Context, info *v1.CollectionInfo, objectIds []string) ([]v1.Object, error)
	FindBySessionIds(ctx context.Context, info *v1.CollectionInfo, sessionIds []string) ([]v1.Object, error)
}

const eventScanLimit = 1000

// Builder turns released sessions into adjuster inputs against the blue
// pair: the query vector comes from the blue QUERY collection keyed by
// session id, result vectors from the blue REGULAR collection.
type Builder struct {
	sessions SessionSource
	cache    *cache.Cache
	vectors  ObjectFinder
}

func NewBuilder(sessions SessionSource, collectionCache *cache.Cache, vectors ObjectFinder) *Builder {
	return &Builder{
		sessions: sessions,
		cache:    collectionCache,
		vectors:  vectors,
	}
}

// BluePair resolves the blue REGULAR and QUERY collections of the default
// namespace.
func (b *Builder) BluePair() (regular, query *v1.CollectionInfo, err error) {
	regular = b.cache.GetBlue(v1.KindRegular)
	if regular == nil {
		return nil, nil, avserrors.NewNoBlueCollection("no blue collection to improve")
	}
	q, ok := b.cache.Get(regular.CollectionId, v1.KindQuery)
	if !ok {
		return nil, nil, avserrors.NewInternalError(fmt.Sprintf(
			"blue collection %s has no query twin", regular.CollectionId))
	}
	return regular, &q, nil
}

// BuildInputs assembles one ImprovementInput per usable session. Sessions
// without a user id, without click events, or without a stored query vector
// contribute nothing but are still reported as consumed.
func (b *Builder) BuildInputs(ctx context.Context, rows []*client.SessionRow) ([]*v1.ImprovementInput, []string, error) {
	regular, query, err := b.BluePair()
	if err != nil {
		return nil, nil, err
	}
	var inputs []*v1.ImprovementInput
	consumed := make([]string, 0, len(rows))
	for _, row := range rows {
		consumed = append(consumed, row.SessionId)
		if row.IsPayloadSearch || row.IsIrrelevant {
			continue
		}
		session := row.ToSession()
		// adjusted vectors land on per-user copies, anonymous sessions
		// have nowhere to write
		if session.UserId == "" {
			continue
		}
		input, err := b.buildOne(ctx, regular, query, &session)
		if err != nil {
			return nil, nil, err
		}
		if input != nil {
			inputs = append(inputs, input)
		}
	}
	return inputs, consumed, nil
}

func (b *Builder) buildOne(ctx context.Context, regular, query *v1.CollectionInfo, session *v1.Session) (*v1.ImprovementInput, error) {
	events, err := b.sessions.ListSessionEvents(ctx, session.SessionId, eventScanLimit)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	clickedIds := map[string]bool{}
	for _, event := range events {
		clickedIds[event.ObjectId] = true
	}

	queryObjects, err := b.vectors.FindBySessionIds(ctx, query, []string{session.SessionId})
	if err != nil {
		return nil, err
	}
	if len(queryObjects) == 0 || len(queryObjects[0].Parts) == 0 {
		klog.Warningf("session %s has no stored query vector, skipped", session.SessionId)
		return nil, nil
	}
	queryVector := queryObjects[0].Parts[0].Vector

	objects, err := b.resolveResults(ctx, regular, session)
	if err != nil {
		return nil, err
	}

	input := &v1.ImprovementInput{
		SessionId:   session.SessionId,
		QueryVector: queryVector,
	}
	for _, result := range session.SearchResults {
		object, ok := objects[result.ObjectId]
		if !ok {
			continue
		}
		element := toElement(result.ObjectId, session.UserId, object)
		if clickedIds[result.ObjectId] {
			input.Clicked = append(input.Clicked, element)
		} else {
			input.NonClicked = append(input.NonClicked, element)
		}
	}
	if len(input.Clicked) == 0 {
		return nil, nil
	}
	return input, nil
}

// resolveResults loads each result object, preferring the session user's
// personalized copy over the original.
func (b *Builder) resolveResults(ctx context.Context, regular *v1.CollectionInfo, session *v1.Session) (map[string]v1.Object, error) {
	originalIds := make([]string, 0, len(session.SearchResults))
	copyIds := make([]string, 0, len(session.SearchResults))
	for _, result := range session.SearchResults {
		originalIds = append(originalIds, result.ObjectId)
		copyIds = append(copyIds, CopyObjectId(result.ObjectId, session.UserId))
	}
	objects := map[string]v1.Object{}
	originals, err := b.vectors.FindByIds(ctx, regular, originalIds)
	if err != nil {
		return nil, err
	}
	for _, object := range originals {
		objects[object.ObjectId] = object
	}
	copies, err := b.vectors.FindByIds(ctx, regular, copyIds)
	if err != nil {
		return nil, err
	}
	for _, object := range copies {
		if object.OriginalId != "" {
			objects[object.OriginalId] = object
		}
	}
	return objects, nil
}

func toElement(originalId, userId string, object v1.Object) v1.ImprovementElement {
	element := v1.ImprovementElement{
		ObjectId: originalId,
		UserId:   userId,
	}
	for _, part := range object.Parts {
		vector := make([]float32, len(part.Vector))
		copy(vector, part.Vector)
		element.Vectors = append(element.Vectors, vector)
		element.IsAverage = append(element.IsAverage, part.IsAverage)
	}
	return element
}

// CopyObjectId names a user's personalized copy of an original object.
func CopyObjectId(originalId, userId string) string {
	return originalId + "_" + userId
}

// WritebackObjects converts adjusted inputs into the personalized objects to
// upsert, plus the original object ids to lock while writing. Only clicked
// and non-clicked elements with a user id produce copies; originals are
// never touched.
func WritebackObjects(inputs []*v1.ImprovementInput) ([]v1.Object, []string) {
	byId := map[string]v1.Object{}
	lockIds := sets.NewSet()
	for _, input := range inputs {
		for _, element := range append(append([]v1.ImprovementElement{}, input.Clicked...), input.NonClicked...) {
			if element.UserId == "" || len(element.Vectors) == 0 {
				continue
			}
			copyId := CopyObjectId(element.ObjectId, element.UserId)
			object := v1.Object{
				ObjectId:   copyId,
				OriginalId: element.ObjectId,
				UserId:     element.UserId,
			}
			for i, vector := range element.Vectors {
				part := v1.ObjectPart{
					PartId: fmt.Sprintf("%s_p%d", copyId, i),
					Vector: vector,
				}
				if i < len(element.IsAverage) {
					part.IsAverage = element.IsAverage[i]
				}
				object.Parts = append(object.Parts, part)
			}
			byId[copyId] = object
			lockIds.Insert(element.ObjectId)
		}
	}
	objects := make([]v1.Object, 0, len(byId))
	for _, object := range byId {
		objects = append(objects, object)
	}
	return objects, lockIds.UnsortedList()
}
