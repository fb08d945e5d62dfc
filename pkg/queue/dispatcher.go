/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/backoff"
	"github.com/AMD-AIG-AIMA/AVS/pkg/utils/concurrent"
)

const (
	abortKeyPrefix       = "avs:abort:"
	abortKeyTTL          = 24 * time.Hour
	popTimeout           = time.Second
	processingListSuffix = ":processing"
)

// Message is one unit of work on a named queue.
type Message struct {
	TaskId   string `json:"task_id"`
	BrokerId string `json:"broker_id"`
}

// Handler consumes one message. The passed context is canceled when the
// message's broker id is aborted.
type Handler func(ctx context.Context, msg *Message) error

// Dispatcher provides at-least-once delivery over Redis lists, one list per
// registered actor. A delivery is moved into the queue's processing list
// while its handler runs and acknowledged by removal afterwards; deliveries
// left in the processing list by a crashed run are requeued on the next
// start. Cancellation is cooperative: Abort marks the broker id and consumer
// loops cancel the handler context when the mark appears.
type Dispatcher struct {
	rdb     *redis.Client
	mux     sync.RWMutex
	actors  map[string]Handler
	onStart []func(ctx context.Context) error
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{
		rdb:    rdb,
		actors: map[string]Handler{},
	}
}

// Register binds a handler to a queue name. Registration must happen before
// Run is called.
func (d *Dispatcher) Register(queue string, handler Handler) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if _, ok := d.actors[queue]; ok {
		klog.Warningf("actor for queue %s registered twice, keeping the last one", queue)
	}
	d.actors[queue] = handler
}

// OnStart registers a hook that runs once the broker connection is verified.
// Workers warm-initialize their plugin model repositories here.
func (d *Dispatcher) OnStart(fn func(ctx context.Context) error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.onStart = append(d.onStart, fn)
}

// Send enqueues the task on the queue and returns the fresh broker id
// assigned to this delivery.
func (d *Dispatcher) Send(ctx context.Context, queue, taskId string) (string, error) {
	msg := Message{TaskId: taskId, BrokerId: uuid.NewString()}
	data, err := json.Marshal(&msg)
	if err != nil {
		return "", err
	}
	if err = d.rdb.LPush(ctx, queue, data).Err(); err != nil {
		return "", avserrors.NewUnavailable(fmt.Sprintf("failed to enqueue on %s: %v", queue, err))
	}
	klog.Infof("sent task %s to queue %s, broker %s", taskId, queue, msg.BrokerId)
	return msg.BrokerId, nil
}

// Abort signals cooperative cancellation for one delivery.
func (d *Dispatcher) Abort(ctx context.Context, brokerId string) error {
	if brokerId == "" {
		return nil
	}
	return d.rdb.Set(ctx, abortKeyPrefix+brokerId, "1", abortKeyTTL).Err()
}

// IsAborted reports whether the broker id has been aborted.
func (d *Dispatcher) IsAborted(ctx context.Context, brokerId string) bool {
	n, err := d.rdb.Exists(ctx, abortKeyPrefix+brokerId).Result()
	return err == nil && n > 0
}

// Run verifies the connection, fires the on-start hooks and drains every
// registered queue until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.rdb.Ping(ctx).Err(); err != nil {
		return avserrors.NewUnavailable(fmt.Sprintf("failed to ping the queue broker: %v", err))
	}
	d.mux.RLock()
	hooks := append([]func(ctx context.Context) error{}, d.onStart...)
	queues := make([]string, 0, len(d.actors))
	for queue := range d.actors {
		queues = append(queues, queue)
	}
	d.mux.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	for _, queue := range queues {
		if err := d.reclaim(ctx, queue); err != nil {
			return err
		}
	}
	klog.Infof("queue dispatcher running, %d queues", len(queues))
	_, _ = concurrent.Exec(len(queues), func(i int) error {
		d.consume(ctx, queues[i])
		return nil
	})
	return nil
}

// reclaim requeues deliveries a previous run parked in the processing list
// and never acknowledged, so a crash mid-task cannot lose the message.
func (d *Dispatcher) reclaim(ctx context.Context, queue string) error {
	processing := queue + processingListSuffix
	for {
		_, err := d.rdb.LMove(ctx, processing, queue, "RIGHT", "RIGHT").Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return avserrors.NewUnavailable(fmt.Sprintf("failed to requeue on %s: %v", queue, err))
		}
		klog.Infof("requeued an unacknowledged delivery on %s", queue)
	}
}

func (d *Dispatcher) consume(ctx context.Context, queue string) {
	processing := queue + processingListSuffix
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		raw, err := d.rdb.BLMove(ctx, queue, processing, "RIGHT", "LEFT", popTimeout).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			klog.ErrorS(err, "failed to pop from queue", "queue", queue)
			time.Sleep(popTimeout)
			continue
		}
		var msg Message
		if err = json.Unmarshal([]byte(raw), &msg); err != nil {
			klog.ErrorS(err, "dropping malformed queue message", "queue", queue)
		} else {
			d.handle(ctx, queue, &msg)
		}
		d.ack(ctx, processing, raw)
	}
}

// ack removes the delivery from the processing list once its handler has
// recorded the outcome. The ack must land even when ctx died with a
// shutdown, or the delivery is replayed on the next start.
func (d *Dispatcher) ack(ctx context.Context, processing, raw string) {
	if err := d.rdb.LRem(context.WithoutCancel(ctx), processing, 1, raw).Err(); err != nil {
		klog.ErrorS(err, "failed to acknowledge delivery", "list", processing)
	}
}

// handle runs the actor under an abort-watching context, retrying transient
// failures with bounded exponential backoff.
func (d *Dispatcher) handle(ctx context.Context, queue string, msg *Message) {
	d.mux.RLock()
	handler := d.actors[queue]
	d.mux.RUnlock()
	if handler == nil {
		klog.Warningf("no actor registered for queue %s, dropping task %s", queue, msg.TaskId)
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.watchAbort(cctx, cancel, msg.BrokerId)

	err := backoff.RetryTransient(func() error {
		if cctx.Err() != nil {
			return nil
		}
		return handler(cctx, msg)
	}, config.GetQueueRetryMaxElapsed(), config.GetQueueRetryMaxInterval())
	if err != nil {
		klog.ErrorS(err, "actor failed", "queue", queue, "task", msg.TaskId, "broker", msg.BrokerId)
	}
}

func (d *Dispatcher) watchAbort(ctx context.Context, cancel context.CancelFunc, brokerId string) {
	ticker := time.NewTicker(config.GetQueueAbortPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.IsAborted(ctx, brokerId) {
				klog.Infof("broker %s aborted, canceling handler", brokerId)
				cancel()
				return
			}
		}
	}
}
