/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// Logger logs one line per request after the handler chain has run.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		if len(c.Errors) > 0 {
			klog.Errorf("%s %s %d %v %s",
				c.Request.Method, c.Request.URL.Path, status, latency, c.Errors.String())
			return
		}
		klog.Infof("%s %s %d %v", c.Request.Method, c.Request.URL.Path, status, latency)
	}
}

func healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
