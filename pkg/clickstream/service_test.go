/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package clickstream

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/assert"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

type fakeSessionStore struct {
	sessions map[string]*client.SessionRow
	events   map[string][]*client.EventRow
	batches  map[string]*client.BatchRow
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*client.SessionRow{},
		events:   map[string][]*client.EventRow{},
		batches:  map[string]*client.BatchRow{},
	}
}

func (f *fakeSessionStore) GetSession(_ context.Context, sessionId string) (*client.SessionRow, error) {
	if row, ok := f.sessions[sessionId]; ok {
		return row, nil
	}
	return nil, avserrors.NewNotFound(avserrors.SessionKindName, sessionId)
}

func (f *fakeSessionStore) InsertSession(_ context.Context, session *v1.Session) error {
	if _, ok := f.sessions[session.SessionId]; ok {
		return nil
	}
	row := &client.SessionRow{
		SessionId:       session.SessionId,
		BatchId:         session.BatchId,
		SessionNumber:   session.SessionNumber,
		SearchQuery:     session.SearchQuery,
		IsIrrelevant:    session.IsIrrelevant,
		IsPayloadSearch: session.IsPayloadSearch,
		UserId:          dbutils.NullString(session.UserId),
	}
	if session.CreateTime != nil {
		row.CreateTime = dbutils.NullTime(*session.CreateTime)
	}
	f.sessions[session.SessionId] = row
	return nil
}

func (f *fakeSessionStore) MarkSessionForImprovement(_ context.Context, sessionId string) error {
	if row, ok := f.sessions[sessionId]; ok {
		row.UseForImprovement = true
	}
	return nil
}

func (f *fakeSessionStore) ListBatchSessions(_ context.Context, batchId string, afterNumber int64, limit int) ([]*client.SessionRow, error) {
	var rows []*client.SessionRow
	for number := afterNumber + 1; len(rows) < limit; number++ {
		found := false
		for _, row := range f.sessions {
			if row.BatchId == batchId && row.SessionNumber == number {
				rows = append(rows, row)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return rows, nil
}

func (f *fakeSessionStore) InsertEvents(_ context.Context, sessionId string, events []v1.SessionEvent) error {
	for i := range events {
		event := events[i]
		duplicate := false
		for _, existing := range f.events[sessionId] {
			if existing.EventId == event.EventId {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		row := &client.EventRow{
			EventId:   event.EventId,
			SessionId: sessionId,
			ObjectId:  event.ObjectId,
			EventType: event.EventType,
		}
		if row.EventType == "" {
			row.EventType = "click"
		}
		f.events[sessionId] = append(f.events[sessionId], row)
	}
	return nil
}

func (f *fakeSessionStore) ListSessionEvents(_ context.Context, sessionId string, limit int) ([]*client.EventRow, error) {
	rows := f.events[sessionId]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeSessionStore) GetBatch(_ context.Context, batchId string) (*client.BatchRow, error) {
	if row, ok := f.batches[batchId]; ok {
		return row, nil
	}
	return nil, avserrors.NewNotFoundWithMessage("batch " + batchId + " not found")
}

func (f *fakeSessionStore) EnsureActiveBatch(_ context.Context) (*client.BatchRow, error) {
	for _, row := range f.batches {
		if !row.IsReleased {
			return row, nil
		}
	}
	row := &client.BatchRow{BatchId: uuid.NewString()}
	f.batches[row.BatchId] = row
	return row, nil
}

func (f *fakeSessionStore) NextSessionNumber(_ context.Context, batchId string) (int64, error) {
	row := f.batches[batchId]
	number := row.NextNumber
	row.NextNumber++
	return number, nil
}

func (f *fakeSessionStore) ReleaseBatch(ctx context.Context, releaseId string) (*client.BatchRow, error) {
	for _, row := range f.batches {
		if row.ReleaseId.Valid && row.ReleaseId.String == releaseId {
			return row, nil
		}
	}
	row, err := f.EnsureActiveBatch(ctx)
	if err != nil {
		return nil, err
	}
	row.IsReleased = true
	row.ReleaseId = sql.NullString{String: releaseId, Valid: true}
	row.ReleaseTime = dbutils.NullTime(time.Now().UTC())
	return row, nil
}

func register(t *testing.T, s *Service, sessionId string) *v1.Session {
	t.Helper()
	session, err := s.RegisterSession(context.Background(), &v1.RegisterSessionRequest{
		SessionId:   sessionId,
		SearchQuery: "red shoes",
		SearchResults: []v1.SessionResult{
			{ObjectId: "o1", Rank: 1},
			{ObjectId: "o2", Rank: 2},
		},
	})
	assert.NilError(t, err)
	return session
}

func TestRegisterSessionAssignsDenseNumbers(t *testing.T) {
	store := newFakeSessionStore()
	s := NewService(store)

	first := register(t, s, "s1")
	second := register(t, s, "s2")
	assert.Equal(t, first.BatchId, second.BatchId)
	assert.Equal(t, first.SessionNumber, int64(0))
	assert.Equal(t, second.SessionNumber, int64(1))

	// duplicate registration keeps the first record
	again := register(t, s, "s1")
	assert.Equal(t, again.SessionNumber, int64(0))
	assert.Equal(t, len(store.sessions), 2)
}

func TestRegisterSessionRequiresId(t *testing.T) {
	s := NewService(newFakeSessionStore())
	_, err := s.RegisterSession(context.Background(), &v1.RegisterSessionRequest{})
	assert.Assert(t, avserrors.IsBadRequest(err))
}

func TestAppendEvents(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	s := NewService(store)
	register(t, s, "s1")

	req := &v1.SessionEventsRequest{
		SessionId: "s1",
		Events: []v1.SessionEvent{
			{EventId: "e1", ObjectId: "o1"},
			{EventId: "e1", ObjectId: "o1"},
			{EventId: "e2", ObjectId: "o2", EventType: "add_to_cart"},
		},
	}
	assert.NilError(t, s.AppendEvents(ctx, req))
	assert.Equal(t, len(store.events["s1"]), 2)
	assert.Equal(t, store.events["s1"][0].EventType, "click")
	assert.Equal(t, store.events["s1"][1].EventType, "add_to_cart")
}

func TestAppendEventsAfterRelease(t *testing.T) {
	ctx := context.Background()
	s := NewService(newFakeSessionStore())
	register(t, s, "s1")

	_, err := s.ReleaseBatch(ctx, "r1")
	assert.NilError(t, err)

	err = s.AppendEvents(ctx, &v1.SessionEventsRequest{
		SessionId: "s1",
		Events:    []v1.SessionEvent{{EventId: "e1", ObjectId: "o1"}},
	})
	assert.Assert(t, avserrors.IsConflict(err))
}

func TestMarkForImprovement(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	s := NewService(store)
	register(t, s, "s1")

	assert.NilError(t, s.MarkForImprovement(ctx, "s1"))
	assert.Equal(t, store.sessions["s1"].UseForImprovement, true)

	err := s.MarkForImprovement(ctx, "missing")
	assert.Assert(t, avserrors.IsNotFound(err))
}

func TestMarkPayloadSearchSession(t *testing.T) {
	ctx := context.Background()
	s := NewService(newFakeSessionStore())
	_, err := s.RegisterSession(ctx, &v1.RegisterSessionRequest{
		SessionId:       "p1",
		SearchQuery:     "",
		IsPayloadSearch: true,
	})
	assert.NilError(t, err)

	err = s.MarkForImprovement(ctx, "p1")
	assert.Assert(t, avserrors.IsConflict(err))
	assert.Equal(t, avserrors.GetErrorCode(err), avserrors.PayloadSearchSession)
}

func TestGetBatchSessions(t *testing.T) {
	ctx := context.Background()
	s := NewService(newFakeSessionStore())
	first := register(t, s, "s1")
	register(t, s, "s2")
	register(t, s, "s3")
	assert.NilError(t, s.AppendEvents(ctx, &v1.SessionEventsRequest{
		SessionId: "s2",
		Events:    []v1.SessionEvent{{EventId: "e1", ObjectId: "o1"}},
	}))

	resp, err := s.GetBatchSessions(ctx, first.BatchId, 0, 2, DefaultEventsLimit)
	assert.NilError(t, err)
	assert.Equal(t, len(resp.Sessions), 2)
	assert.Equal(t, resp.Sessions[0].SessionId, "s2")
	assert.Equal(t, len(resp.Sessions[0].Events), 1)
	assert.Equal(t, resp.Sessions[1].SessionId, "s3")
}

func TestReleaseBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeSessionStore()
	s := NewService(store)
	first := register(t, s, "s1")

	released, err := s.ReleaseBatch(ctx, "r1")
	assert.NilError(t, err)
	assert.Equal(t, released.BatchId, first.BatchId)

	again, err := s.ReleaseBatch(ctx, "r1")
	assert.NilError(t, err)
	assert.Equal(t, again.BatchId, first.BatchId)

	// a new session after release opens a fresh batch
	next := register(t, s, "s2")
	assert.Assert(t, next.BatchId != first.BatchId)
	assert.Equal(t, next.SessionNumber, int64(0))
}
