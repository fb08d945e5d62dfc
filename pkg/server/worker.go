/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	"github.com/AMD-AIG-AIMA/AVS/pkg/inference"
	avsklog "github.com/AMD-AIG-AIMA/AVS/pkg/klog"
	"github.com/AMD-AIG-AIMA/AVS/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/AVS/pkg/options"
	"github.com/AMD-AIG-AIMA/AVS/pkg/queue"
	"github.com/AMD-AIG-AIMA/AVS/pkg/s3"
	"github.com/AMD-AIG-AIMA/AVS/pkg/tasks"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
	"github.com/AMD-AIG-AIMA/AVS/pkg/workers"
)

// WorkerServer is the worker process: the queue dispatcher with every task
// actor registered, plus the improvement polling loop.
type WorkerServer struct {
	opts       *options.Options
	ctx        context.Context
	cancel     context.CancelFunc
	meta       *client.Client
	dispatcher *queue.Dispatcher
	workers    *workers.Workers
	isInited   bool
}

func NewWorkerServer() (*WorkerServer, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &WorkerServer{
		opts:   &options.Options{},
		ctx:    ctx,
		cancel: cancel,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WorkerServer) init() error {
	var err error
	if err = s.opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		return err
	}
	if err = avsklog.Init(s.opts.LogfilePath, s.opts.LogFileSize); err != nil {
		klog.ErrorS(err, "failed to init logs")
		return err
	}
	if err = initConfig(s.opts.Config); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}
	s.isInited = true
	return nil
}

func (s *WorkerServer) Start() {
	if !s.isInited {
		klog.Errorf("please init worker first")
		return
	}
	if err := s.initWorkers(); err != nil {
		klog.ErrorS(err, "failed to init workers")
		os.Exit(-1)
	}

	klog.Infof("starting worker")
	go s.workers.RunImproveLoop(s.ctx)
	if err := s.dispatcher.Run(s.ctx); err != nil {
		klog.ErrorS(err, "dispatcher stopped")
	}
	s.Stop()
}

func (s *WorkerServer) Stop() {
	if s.meta != nil {
		s.meta.Close()
	}
	s.cancel()
	klog.Info("worker is stopped")
	klog.Flush()
}

func (s *WorkerServer) initWorkers() error {
	s.meta = client.NewClient()
	if s.meta == nil {
		return fmt.Errorf("the db client is not initialized")
	}
	if err := s.meta.Migrate(); err != nil {
		return err
	}
	db, err := s.meta.DB()
	if err != nil {
		return err
	}
	vectors := vectorstore.New(db)
	collectionCache := cache.New(s.meta)
	registerPlugins()

	s.dispatcher = queue.NewDispatcher(queue.NewRedisClient())
	s.workers = workers.New(
		s.meta,
		collectionCache,
		vectors,
		inference.NewClient(),
		lifecycle.NewManager(s.meta, collectionCache, vectors),
		tasks.NewService(s.meta, s.dispatcher),
		s3.NewClient(s.ctx),
	)
	s.workers.Register(s.dispatcher)
	s.dispatcher.OnStart(func(ctx context.Context) error {
		return collectionCache.Reload(ctx)
	})
	return nil
}
