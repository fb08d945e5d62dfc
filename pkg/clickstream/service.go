/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package clickstream

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/timeutil"
)

const (
	DefaultSessionsLimit = 200
	DefaultEventsLimit   = 100
)

// SessionStore is the slice of the metadata store the clickstream service
// writes through.
type SessionStore interface {
	GetSession(ctx context.Context, sessionId string) (*client.SessionRow, error)
	InsertSession(ctx context.Context, session *v1.Session) error
	MarkSessionForImprovement(ctx context.Context, sessionId string) error
	ListBatchSessions(ctx context.Context, batchId string, afterNumber int64, limit int) ([]*client.SessionRow, error)
	InsertEvents(ctx context.Context, sessionId string, events []v1.SessionEvent) error
	ListSessionEvents(ctx context.Context, sessionId string, limit int) ([]*client.EventRow, error)
	GetBatch(ctx context.Context, batchId string) (*client.BatchRow, error)
	EnsureActiveBatch(ctx context.Context) (*client.BatchRow, error)
	NextSessionNumber(ctx context.Context, batchId string) (int64, error)
	ReleaseBatch(ctx context.Context, releaseId string) (*client.BatchRow, error)
}

// Service records search sessions and click events into release batches. A
// batch is open until released; released batches feed the improve pipeline.
type Service struct {
	store SessionStore
}

func NewService(store SessionStore) *Service {
	return &Service{store: store}
}

// RegisterSession files the session into the active batch under the next
// dense session number. Re-registering a session id keeps the first record.
func (s *Service) RegisterSession(ctx context.Context, req *v1.RegisterSessionRequest) (*v1.Session, error) {
	if req.SessionId == "" {
		return nil, avserrors.NewBadRequest("session_id is required")
	}
	if existing, err := s.store.GetSession(ctx, req.SessionId); err == nil {
		session := existing.ToSession()
		return &session, nil
	} else if !avserrors.IsNotFound(err) {
		return nil, err
	}
	batch, err := s.store.EnsureActiveBatch(ctx)
	if err != nil {
		return nil, err
	}
	number, err := s.store.NextSessionNumber(ctx, batch.BatchId)
	if err != nil {
		return nil, err
	}
	session := &v1.Session{
		SessionId:       req.SessionId,
		BatchId:         batch.BatchId,
		SessionNumber:   number,
		SearchQuery:     req.SearchQuery,
		SearchResults:   req.SearchResults,
		IsIrrelevant:    req.IsIrrelevant,
		IsPayloadSearch: req.IsPayloadSearch,
		UserId:          req.UserId,
	}
	if t := timeutil.CvtStrUnixToTime(req.CreatedAt); !t.IsZero() {
		session.CreateTime = &t
	}
	if err = s.store.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	// a concurrent register may have won the insert, read back the winner
	row, err := s.store.GetSession(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	stored := row.ToSession()
	klog.Infof("registered session %s as number %d in batch %s",
		stored.SessionId, stored.SessionNumber, stored.BatchId)
	return &stored, nil
}

// AppendEvents attaches click events to the session, deduplicated by event
// id. Events on a session of a released batch are rejected.
func (s *Service) AppendEvents(ctx context.Context, req *v1.SessionEventsRequest) error {
	if req.SessionId == "" {
		return avserrors.NewBadRequest("session_id is required")
	}
	if len(req.Events) == 0 {
		return nil
	}
	for i := range req.Events {
		if req.Events[i].EventId == "" || req.Events[i].ObjectId == "" {
			return avserrors.NewBadRequest("event_id and object_id are required on every event")
		}
	}
	row, err := s.store.GetSession(ctx, req.SessionId)
	if err != nil {
		return err
	}
	batch, err := s.store.GetBatch(ctx, row.BatchId)
	if err != nil {
		return err
	}
	if batch.IsReleased {
		return avserrors.NewBatchReleased(row.BatchId)
	}
	return s.store.InsertEvents(ctx, req.SessionId, req.Events)
}

// MarkForImprovement flags the session for the improve pipeline. Payload
// search sessions carry no query vector and cannot be used.
func (s *Service) MarkForImprovement(ctx context.Context, sessionId string) error {
	row, err := s.store.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}
	if row.IsPayloadSearch {
		return avserrors.NewPayloadSearchSession(sessionId)
	}
	return s.store.MarkSessionForImprovement(ctx, sessionId)
}

// GetBatchSessions pages through a batch's sessions ordered by session
// number, each loaded with at most eventsLimit events.
func (s *Service) GetBatchSessions(ctx context.Context, batchId string, afterNumber int64, limit, eventsLimit int) (*v1.GetBatchSessionsResponse, error) {
	if _, err := s.store.GetBatch(ctx, batchId); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSessionsLimit
	}
	if eventsLimit <= 0 {
		eventsLimit = DefaultEventsLimit
	}
	rows, err := s.store.ListBatchSessions(ctx, batchId, afterNumber, limit)
	if err != nil {
		return nil, err
	}
	resp := &v1.GetBatchSessionsResponse{
		BatchId:  batchId,
		Sessions: make([]v1.Session, 0, len(rows)),
	}
	for _, row := range rows {
		session := row.ToSession()
		events, err := s.store.ListSessionEvents(ctx, row.SessionId, eventsLimit)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			session.Events = append(session.Events, event.ToEvent())
		}
		resp.Sessions = append(resp.Sessions, session)
	}
	return resp, nil
}

// ReleaseBatch closes the active batch under the release id. The next
// registered session opens a fresh batch. Repeating a release id returns the
// batch it already released.
func (s *Service) ReleaseBatch(ctx context.Context, releaseId string) (*v1.ReleaseBatchResponse, error) {
	if releaseId == "" {
		return nil, avserrors.NewBadRequest("release_id is required")
	}
	batch, err := s.store.ReleaseBatch(ctx, releaseId)
	if err != nil {
		return nil, err
	}
	if !batch.ReleaseId.Valid || batch.ReleaseId.String != releaseId {
		return nil, avserrors.NewInternalError(fmt.Sprintf(
			"batch %s released under a different id", batch.BatchId))
	}
	klog.Infof("released batch %s under release %s", batch.BatchId, releaseId)
	return &v1.ReleaseBatchResponse{BatchId: batch.BatchId, ReleaseId: releaseId}, nil
}
