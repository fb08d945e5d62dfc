/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/AVS/pkg/cache"
	"github.com/AMD-AIG-AIMA/AVS/pkg/clickstream"
	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	"github.com/AMD-AIG-AIMA/AVS/pkg/database/client"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
	"github.com/AMD-AIG-AIMA/AVS/pkg/handlers"
	"github.com/AMD-AIG-AIMA/AVS/pkg/inference"
	avsklog "github.com/AMD-AIG-AIMA/AVS/pkg/klog"
	"github.com/AMD-AIG-AIMA/AVS/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/AVS/pkg/options"
	"github.com/AMD-AIG-AIMA/AVS/pkg/plugin"
	"github.com/AMD-AIG-AIMA/AVS/pkg/queue"
	"github.com/AMD-AIG-AIMA/AVS/pkg/tasks"
	"github.com/AMD-AIG-AIMA/AVS/pkg/vectorstore"
)

// Server is the API server process: the HTTP surface plus the metadata,
// vector store and queue clients behind it.
type Server struct {
	opts       *options.Options
	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	meta       *client.Client
	isInited   bool
}

func NewServer() (*Server, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &Server{
		opts:   &options.Options{},
		ctx:    ctx,
		cancel: cancel,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
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

func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init api-server first")
		return
	}
	gin.EnableJsonDecoderDisallowUnknownFields()

	klog.Infof("starting api-server")
	go func() {
		if err := s.startHttpServer(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http-server")
			os.Exit(-1)
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "failed to shutdown httpserver")
		}
	}
	if s.meta != nil {
		s.meta.Close()
	}
	s.cancel()
	klog.Info("api-server is stopped")
	klog.Flush()
}

func (s *Server) startHttpServer() error {
	if config.GetServerPort() <= 0 {
		return fmt.Errorf("the apiserver port is not defined")
	}
	handler, err := s.initHandlers()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf(":%d", config.GetServerPort())
	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	klog.Infof("http-server listen port: %d", config.GetServerPort())
	return s.httpServer.ListenAndServe()
}

func (s *Server) initHandlers() (*gin.Engine, error) {
	s.meta = client.NewClient()
	if s.meta == nil {
		return nil, fmt.Errorf("the db client is not initialized")
	}
	if err := s.meta.Migrate(); err != nil {
		return nil, err
	}
	db, err := s.meta.DB()
	if err != nil {
		return nil, err
	}
	vectors := vectorstore.New(db)
	collectionCache := cache.New(s.meta)
	if err = collectionCache.Reload(s.ctx); err != nil {
		return nil, err
	}
	registerPlugins()

	dispatcher := queue.NewDispatcher(queue.NewRedisClient())
	handler := handlers.NewHandler(
		collectionCache,
		vectors,
		lifecycle.NewManager(s.meta, collectionCache, vectors),
		tasks.NewService(s.meta, dispatcher),
		clickstream.NewService(s.meta),
		inference.NewClient(),
	)
	return handlers.InitHttpHandlers(handler), nil
}

func initConfig(path string) error {
	fullPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}

// registerPlugins installs the built-in plugins. Re-registration across
// in-process restarts is harmless.
func registerPlugins() {
	if err := plugin.Register(plugin.NewDefaultPlugin()); err != nil && !avserrors.IsConflict(err) {
		klog.ErrorS(err, "failed to register default plugin")
	}
}
