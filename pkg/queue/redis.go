/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"github.com/redis/go-redis/v9"

	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
)

// NewRedisClient connects to the configured broker backend.
func NewRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.GetRedisAddr(),
		Password: config.GetRedisPassword(),
		DB:       config.GetRedisDB(),
	})
}
