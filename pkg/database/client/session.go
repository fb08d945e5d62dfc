/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

const (
	TSession = "search_session"
	TEvent   = "session_event"
	TBatch   = "session_batch"
)

var (
	getSessionCmd   = fmt.Sprintf(`SELECT * FROM %s WHERE session_id = $1 LIMIT 1`, TSession)
	insertSessFmt   = `INSERT INTO ` + TSession + ` (%s) VALUES (%s) ON CONFLICT (session_id) DO NOTHING`
	markImproveCmd  = fmt.Sprintf(`UPDATE %s SET use_for_improvement = TRUE WHERE session_id = $1`, TSession)
	batchSessionsCmd = fmt.Sprintf(`SELECT * FROM %s
		WHERE batch_id = $1 AND session_number > $2
		ORDER BY session_number LIMIT $3`, TSession)
	improveSessionsCmd = fmt.Sprintf(`SELECT s.* FROM %s s JOIN %s b ON s.batch_id = b.batch_id
		WHERE b.is_released AND s.use_for_improvement AND NOT s.is_payload_search AND NOT s.is_irrelevant
		ORDER BY s.create_time LIMIT $1`, TSession, TBatch)
	clearImproveCmd = fmt.Sprintf(`UPDATE %s SET use_for_improvement = FALSE WHERE session_id = ANY($1)`, TSession)

	insertEventFmt   = `INSERT INTO ` + TEvent + ` (%s) VALUES (%s) ON CONFLICT (event_id) DO NOTHING`
	sessionEventsCmd = fmt.Sprintf(`SELECT * FROM %s WHERE session_id = $1 ORDER BY create_time LIMIT $2`, TEvent)

	getActiveBatchCmd = fmt.Sprintf(`SELECT * FROM %s WHERE NOT is_released LIMIT 1`, TBatch)
	getBatchCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE batch_id = $1 LIMIT 1`, TBatch)
	insertBatchFmt    = `INSERT INTO ` + TBatch + ` (%s) VALUES (%s) ON CONFLICT DO NOTHING`
	nextNumberCmd     = fmt.Sprintf(`UPDATE %s SET next_number = next_number + 1
		WHERE batch_id = $1 AND NOT is_released RETURNING next_number - 1`, TBatch)
	releaseBatchCmd = fmt.Sprintf(`UPDATE %s SET is_released = TRUE, release_id = $2, release_time = now()
		WHERE batch_id = $1 AND NOT is_released`, TBatch)
	byReleaseIdCmd = fmt.Sprintf(`SELECT * FROM %s WHERE release_id = $1 LIMIT 1`, TBatch)
)

func (c *Client) GetSession(ctx context.Context, sessionId string) (*SessionRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*SessionRow{}
	if err = db.SelectContext(ctx, &rows, getSessionCmd, sessionId); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, avserrors.NewNotFound(avserrors.SessionKindName, sessionId)
	}
	return rows[0], nil
}

// InsertSession persists the session into the given batch with the assigned
// number. A duplicate session_id keeps the first row.
func (c *Client) InsertSession(ctx context.Context, session *v1.Session) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	row := &SessionRow{
		SessionId:       session.SessionId,
		BatchId:         session.BatchId,
		SessionNumber:   session.SessionNumber,
		SearchQuery:     session.SearchQuery,
		Results:         MarshalJsonColumn(session.SearchResults),
		IsIrrelevant:    session.IsIrrelevant,
		IsPayloadSearch: session.IsPayloadSearch,
		UserId:          dbutils.NullString(session.UserId),
	}
	if session.CreateTime != nil {
		row.CreateTime = dbutils.NullTime(*session.CreateTime)
	} else {
		row.CreateTime = dbutils.NullTime(time.Now().UTC())
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*row, insertSessFmt, "id"), row)
	if err != nil {
		klog.ErrorS(err, "failed to insert session db", "id", session.SessionId)
	}
	return err
}

func (c *Client) MarkSessionForImprovement(ctx context.Context, sessionId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, markImproveCmd, sessionId)
	return err
}

func (c *Client) ListBatchSessions(ctx context.Context, batchId string, afterNumber int64, limit int) ([]*SessionRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*SessionRow{}
	if err = db.SelectContext(ctx, &rows, batchSessionsCmd, batchId, afterNumber, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListImprovementSessions returns released sessions flagged for improvement.
func (c *Client) ListImprovementSessions(ctx context.Context, limit int) ([]*SessionRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*SessionRow{}
	if err = db.SelectContext(ctx, &rows, improveSessionsCmd, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// ClearImprovementFlags marks sessions as consumed by the improve worker.
func (c *Client) ClearImprovementFlags(ctx context.Context, sessionIds []string) error {
	if len(sessionIds) == 0 {
		return nil
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, clearImproveCmd, pqArray(sessionIds))
	return err
}

// InsertEvents appends events, deduplicated by event_id.
func (c *Client) InsertEvents(ctx context.Context, sessionId string, events []v1.SessionEvent) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	for i := range events {
		event := &events[i]
		row := &EventRow{
			EventId:   event.EventId,
			SessionId: sessionId,
			ObjectId:  event.ObjectId,
			EventType: event.EventType,
		}
		if row.EventType == "" {
			row.EventType = "click"
		}
		if event.CreateTime != nil {
			row.CreateTime = dbutils.NullTime(*event.CreateTime)
		} else {
			row.CreateTime = dbutils.NullTime(time.Now().UTC())
		}
		if _, err = db.NamedExecContext(ctx, generateCommand(*row, insertEventFmt, "id"), row); err != nil {
			klog.ErrorS(err, "failed to insert session event", "session", sessionId, "event", event.EventId)
			return err
		}
	}
	return nil
}

func (c *Client) ListSessionEvents(ctx context.Context, sessionId string, limit int) ([]*EventRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*EventRow{}
	if err = db.SelectContext(ctx, &rows, sessionEventsCmd, sessionId, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetBatch(ctx context.Context, batchId string) (*BatchRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*BatchRow{}
	if err = db.SelectContext(ctx, &rows, getBatchCmd, batchId); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, avserrors.NewNotFoundWithMessage(fmt.Sprintf("batch %s not found", batchId))
	}
	return rows[0], nil
}

// EnsureActiveBatch returns the unreleased batch, creating one lazily. The
// partial unique index on is_released makes concurrent creates collapse to
// one row.
func (c *Client) EnsureActiveBatch(ctx context.Context) (*BatchRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		rows := []*BatchRow{}
		if err = db.SelectContext(ctx, &rows, getActiveBatchCmd); err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows[0], nil
		}
		row := &BatchRow{BatchId: uuid.NewString()}
		if _, err = db.NamedExecContext(ctx, generateCommand(*row, insertBatchFmt, "id"), row); err != nil {
			return nil, err
		}
	}
	return nil, avserrors.NewInternalError("failed to ensure an active batch")
}

// NextSessionNumber assigns the next dense number within the active batch.
func (c *Client) NextSessionNumber(ctx context.Context, batchId string) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	var number int64
	if err = db.GetContext(ctx, &number, nextNumberCmd, batchId); err != nil {
		return 0, err
	}
	return number, nil
}

// ReleaseBatch finalizes the active batch under the given release id. A
// repeated call with the same release id returns the already-released batch.
func (c *Client) ReleaseBatch(ctx context.Context, releaseId string) (*BatchRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	released := []*BatchRow{}
	if err = db.SelectContext(ctx, &released, byReleaseIdCmd, releaseId); err != nil {
		return nil, err
	}
	if len(released) > 0 {
		return released[0], nil
	}
	active, err := c.EnsureActiveBatch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err = db.ExecContext(ctx, releaseBatchCmd, active.BatchId, releaseId); err != nil {
		klog.ErrorS(err, "failed to release batch", "batch", active.BatchId, "release", releaseId)
		return nil, err
	}
	return c.GetBatch(ctx, active.BatchId)
}
