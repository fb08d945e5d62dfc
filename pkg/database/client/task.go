/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	v1 "github.com/AMD-AIG-AIMA/AVS/pkg/apis/v1"
	dbutils "github.com/AMD-AIG-AIMA/AVS/pkg/database/utils"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

const (
	TTask = "task"
)

var (
	getTaskCmd      = fmt.Sprintf(`SELECT * FROM %s WHERE task_id = $1 LIMIT 1`, TTask)
	insertTaskFmt   = `INSERT INTO ` + TTask + ` (%s) VALUES (%s) ON CONFLICT (task_id) DO NOTHING`
	listChildrenCmd = fmt.Sprintf(`SELECT * FROM %s WHERE parent_id = $1 ORDER BY create_time`, TTask)
	setBrokerCmd    = fmt.Sprintf(`UPDATE %s SET broker_id = $2, update_time = now() WHERE task_id = $1`, TTask)
	setParentCmd    = fmt.Sprintf(`UPDATE %s SET parent_id = $2, update_time = now() WHERE task_id = $1`, TTask)
	restartTaskCmd  = fmt.Sprintf(`UPDATE %s SET status = $2, failed_items = NULL, broker_id = NULL, update_time = now()
		WHERE task_id = $1 AND status = ANY($3)`, TTask)
	updateStatusCmd = fmt.Sprintf(`UPDATE %s SET status = $2, update_time = now()
		WHERE task_id = $1 AND status = ANY($3)`, TTask)
	appendFailuresCmd = fmt.Sprintf(`UPDATE %s
		SET failed_items = COALESCE(failed_items, '[]'::jsonb) || $2::jsonb, update_time = now()
		WHERE task_id = $1`, TTask)
	conflictReindexCmd = fmt.Sprintf(`SELECT * FROM %s
		WHERE kind = $1 AND status = $2 AND (payload->'source'->>'embedding_model_id' = ANY($3)
		   OR payload->'dest'->>'embedding_model_id' = ANY($3)) LIMIT 1`, TTask)
)

// allowedFrom lists the source statuses a task may leave for each target.
var allowedFrom = map[v1.TaskStatus][]string{
	v1.TaskProcessing: {string(v1.TaskPending)},
	v1.TaskDone:       {string(v1.TaskProcessing)},
	v1.TaskError:      {string(v1.TaskProcessing)},
	v1.TaskCanceled:   {string(v1.TaskPending), string(v1.TaskProcessing)},
}

// CreateTask inserts the task with PENDING status. When a task with the same
// id already exists the stored row is returned untouched and created=false,
// so the caller can skip the queue send.
func (c *Client) CreateTask(ctx context.Context, task *v1.Task) (*v1.Task, bool, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, false, err
	}
	row := &TaskRow{
		TaskId:           task.TaskId,
		Kind:             string(task.Kind),
		Status:           string(v1.TaskPending),
		EmbeddingModelId: dbutils.NullString(task.EmbeddingModelId),
		ParentId:         dbutils.NullString(task.ParentId),
		Payload:          task.Payload,
	}
	result, err := db.NamedExecContext(ctx, generateCommand(*row, insertTaskFmt, "id"), row)
	if err != nil {
		klog.ErrorS(err, "failed to insert task db", "id", task.TaskId)
		return nil, false, err
	}
	inserted, _ := result.RowsAffected()
	stored, err := c.GetTask(ctx, task.TaskId)
	if err != nil {
		return nil, false, err
	}
	return stored, inserted > 0, nil
}

func (c *Client) GetTask(ctx context.Context, taskId string) (*v1.Task, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*TaskRow{}
	if err = db.SelectContext(ctx, &rows, getTaskCmd, taskId); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return nil, avserrors.NewNotFound(avserrors.TaskKindName, taskId)
	}
	task := rows[0].ToTask()
	children, err := c.listChildIds(ctx, taskId)
	if err != nil {
		return nil, err
	}
	task.Children = children
	return &task, nil
}

func (c *Client) listChildIds(ctx context.Context, parentId string) ([]string, error) {
	rows, err := c.ListChildren(ctx, parentId)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.TaskId)
	}
	return ids, nil
}

func (c *Client) ListChildren(ctx context.Context, parentId string) ([]*TaskRow, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*TaskRow{}
	if err = db.SelectContext(ctx, &rows, listChildrenCmd, parentId); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListTasks(ctx context.Context, kind v1.TaskKind, status v1.TaskStatus, offset, limit int) ([]v1.Task, int64, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, 0, err
	}
	query := sqrl.And{sqrl.Eq{"kind": string(kind)}}
	if status != "" {
		query = append(query, sqrl.Eq{"status": string(status)})
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TTask).
		Where(query).
		OrderBy("create_time desc").
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows := []*TaskRow{}
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	if err = db.SelectContext(ctx2, &rows, sql, args...); err != nil {
		return nil, 0, err
	}
	countSql, countArgs, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).
		From(TTask).Where(query).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err = db.GetContext(ctx, &total, countSql, countArgs...); err != nil {
		return nil, 0, err
	}
	tasks := make([]v1.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.ToTask())
	}
	return tasks, total, nil
}

// UpdateStatus moves the task to newStatus with a compare-and-set update.
// Zero rows affected means the task was not in an allowed source status.
func (c *Client) UpdateStatus(ctx context.Context, taskId string, newStatus v1.TaskStatus) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	from, ok := allowedFrom[newStatus]
	if !ok {
		return avserrors.NewInvalidStateTransition(taskId, "?", string(newStatus))
	}
	result, err := db.ExecContext(ctx, updateStatusCmd, taskId, string(newStatus), pqArray(from))
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		stored, getErr := c.GetTask(ctx, taskId)
		if getErr != nil {
			return getErr
		}
		return avserrors.NewInvalidStateTransition(taskId, string(stored.Status), string(newStatus))
	}
	return nil
}

// RestartTask resets a terminal or still-pending task back to PENDING,
// clearing failures and the stale broker id.
func (c *Client) RestartTask(ctx context.Context, taskId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	from := []string{
		string(v1.TaskPending), string(v1.TaskDone),
		string(v1.TaskError), string(v1.TaskCanceled),
	}
	result, err := db.ExecContext(ctx, restartTaskCmd, taskId, string(v1.TaskPending), pqArray(from))
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		stored, getErr := c.GetTask(ctx, taskId)
		if getErr != nil {
			return getErr
		}
		return avserrors.NewTaskRefused(
			fmt.Sprintf("task %s in status %s cannot be restarted", taskId, stored.Status))
	}
	return nil
}

func (c *Client) SetBrokerId(ctx context.Context, taskId, brokerId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, setBrokerCmd, taskId, brokerId)
	return err
}

// LinkChild attaches child to parent. Children are modeled by the parent_id
// column, so this is a single-row update on the child.
func (c *Client) LinkChild(ctx context.Context, parentId, childId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, setParentCmd, childId, parentId)
	return err
}

// AppendFailures appends items to the task's failed_items jsonb array.
func (c *Client) AppendFailures(ctx context.Context, taskId string, items []v1.FailedItem) error {
	if len(items) == 0 {
		return nil
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, appendFailuresCmd, taskId, string(data))
	if err != nil {
		klog.ErrorS(err, "failed to append task failures", "id", taskId, "count", len(items))
	}
	return err
}

// FindProcessingReindex returns a PROCESSING reindex task whose source or
// destination model matches any of modelIds, excluding selfId.
func (c *Client) FindProcessingReindex(ctx context.Context, modelIds []string, selfId string) (*v1.Task, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	rows := []*TaskRow{}
	err = db.SelectContext(ctx, &rows, conflictReindexCmd,
		string(v1.TaskReindex), string(v1.TaskProcessing), pqArray(modelIds))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.TaskId == selfId {
			continue
		}
		task := row.ToTask()
		return &task, nil
	}
	return nil, nil
}

// WaitTask polls until the task reaches a terminal status or ctx expires.
func (c *Client) WaitTask(ctx context.Context, taskId string, interval time.Duration) (*v1.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskId)
		if err != nil {
			return nil, err
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
