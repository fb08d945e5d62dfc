/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type fakeTaskStore struct {
	tasks map[string]*v1.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*v1.Task{}}
}

func (f *fakeTaskStore) CreateTask(_ context.Context, task *v1.Task) (*v1.Task, bool, error) {
	if stored, ok := f.tasks[task.TaskId]; ok {
		return stored, false, nil
	}
	stored := *task
	stored.Status = v1.TaskPending
	f.tasks[task.TaskId] = &stored
	return &stored, true, nil
}

func (f *fakeTaskStore) GetTask(_ context.Context, taskId string) (*v1.Task, error) {
	if stored, ok := f.tasks[taskId]; ok {
		copied := *stored
		return &copied, nil
	}
	return nil, avserrors.NewNotFound(avserrors.TaskKindName, taskId)
}

func (f *fakeTaskStore) ListTasks(_ context.Context, kind v1.TaskKind, status v1.TaskStatus, _, _ int) ([]v1.Task, int64, error) {
	var result []v1.Task
	for _, task := range f.tasks {
		if task.Kind != kind {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		result = append(result, *task)
	}
	return result, int64(len(result)), nil
}

func (f *fakeTaskStore) UpdateStatus(_ context.Context, taskId string, newStatus v1.TaskStatus) error {
	task, ok := f.tasks[taskId]
	if !ok {
		return avserrors.NewNotFound(avserrors.TaskKindName, taskId)
	}
	task.Status = newStatus
	return nil
}

func (f *fakeTaskStore) RestartTask(_ context.Context, taskId string) error {
	task, ok := f.tasks[taskId]
	if !ok {
		return avserrors.NewNotFound(avserrors.TaskKindName, taskId)
	}
	if task.Status == v1.TaskProcessing {
		return avserrors.NewTaskRefused("task is processing")
	}
	task.Status = v1.TaskPending
	return nil
}

func (f *fakeTaskStore) SetBrokerId(_ context.Context, taskId, brokerId string) error {
	if task, ok := f.tasks[taskId]; ok {
		task.BrokerId = brokerId
	}
	return nil
}

type fakeBroker struct {
	sends   []string
	aborted []string
	seq     int
}

func (f *fakeBroker) Send(_ context.Context, queue, taskId string) (string, error) {
	f.sends = append(f.sends, queue+"/"+taskId)
	f.seq++
	return fmt.Sprintf("broker-%d", f.seq), nil
}

func (f *fakeBroker) Abort(_ context.Context, brokerId string) error {
	f.aborted = append(f.aborted, brokerId)
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*client.SessionRow
	events   map[string][]*client.EventRow
	batches  map[string]*client.BatchRow
	active   string
	batchSeq int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*client.SessionRow{},
		events:   map[string][]*client.EventRow{},
		batches:  map[string]*client.BatchRow{},
	}
}

func (f *fakeSessionStore) GetSession(_ context.Context, sessionId string) (*client.SessionRow, error) {
	row, ok := f.sessions[sessionId]
	if !ok {
		return nil, avserrors.NewNotFound(avserrors.SessionKindName, sessionId)
	}
	return row, nil
}

func (f *fakeSessionStore) InsertSession(_ context.Context, session *v1.Session) error {
	if _, ok := f.sessions[session.SessionId]; ok {
		return nil
	}
	f.sessions[session.SessionId] = &client.SessionRow{
		SessionId:       session.SessionId,
		BatchId:         session.BatchId,
		SessionNumber:   session.SessionNumber,
		SearchQuery:     session.SearchQuery,
		Results:         client.MarshalJsonColumn(session.SearchResults),
		IsIrrelevant:    session.IsIrrelevant,
		IsPayloadSearch: session.IsPayloadSearch,
		UserId:          nullString(session.UserId),
	}
	return nil
}

func (f *fakeSessionStore) MarkSessionForImprovement(_ context.Context, sessionId string) error {
	row, ok := f.sessions[sessionId]
	if !ok {
		return avserrors.NewNotFound(avserrors.SessionKindName, sessionId)
	}
	row.UseForImprovement = true
	return nil
}

func (f *fakeSessionStore) ListBatchSessions(_ context.Context, batchId string, afterNumber int64, limit int) ([]*client.SessionRow, error) {
	var rows []*client.SessionRow
	for _, row := range f.sessions {
		if row.BatchId == batchId && row.SessionNumber > afterNumber {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SessionNumber < rows[j].SessionNumber })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeSessionStore) InsertEvents(_ context.Context, sessionId string, events []v1.SessionEvent) error {
	seen := map[string]bool{}
	for _, row := range f.events[sessionId] {
		seen[row.EventId] = true
	}
	for _, event := range events {
		if seen[event.EventId] {
			continue
		}
		seen[event.EventId] = true
		f.events[sessionId] = append(f.events[sessionId], &client.EventRow{
			EventId:   event.EventId,
			SessionId: sessionId,
			ObjectId:  event.ObjectId,
			EventType: event.EventType,
		})
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
	batch, ok := f.batches[batchId]
	if !ok {
		return nil, avserrors.NewNotFoundWithMessage(fmt.Sprintf("batch %s not found", batchId))
	}
	return batch, nil
}

func (f *fakeSessionStore) EnsureActiveBatch(_ context.Context) (*client.BatchRow, error) {
	if f.active != "" {
		return f.batches[f.active], nil
	}
	f.batchSeq++
	batchId := fmt.Sprintf("b%d", f.batchSeq)
	batch := &client.BatchRow{BatchId: batchId}
	f.batches[batchId] = batch
	f.active = batchId
	return batch, nil
}

func (f *fakeSessionStore) NextSessionNumber(_ context.Context, batchId string) (int64, error) {
	batch, ok := f.batches[batchId]
	if !ok {
		return 0, avserrors.NewNotFoundWithMessage(fmt.Sprintf("batch %s not found", batchId))
	}
	number := batch.NextNumber
	batch.NextNumber++
	return number, nil
}

func (f *fakeSessionStore) ReleaseBatch(_ context.Context, releaseId string) (*client.BatchRow, error) {
	for _, batch := range f.batches {
		if batch.ReleaseId.Valid && batch.ReleaseId.String == releaseId {
			return batch, nil
		}
	}
	if f.active == "" {
		return nil, avserrors.NewNotFoundWithMessage("no active batch")
	}
	batch := f.batches[f.active]
	batch.IsReleased = true
	batch.ReleaseId = nullString(releaseId)
	f.active = ""
	return batch, nil
}
