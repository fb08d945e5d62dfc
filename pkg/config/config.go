/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func SetValue(key, value string) {
	viper.Set(key, value)
}

func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

func getFromFile(configPath, item string) string {
	path := getString(configPath, "")
	data, err := os.ReadFile(filepath.Join(path, item))
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\r\n")
}

func GetServerPort() int {
	return getInt(serverPort, 0)
}

func IsHealthCheckEnabled() bool {
	return getBool(healthCheckEnable, true)
}

func GetDBHost() string {
	if host := getString(dbHost, ""); host != "" {
		return host
	}
	return getFromFile(dbSecretPath, "host")
}

func GetDBPort() int {
	if port := getInt(dbPort, 0); port > 0 {
		return port
	}
	n, err := strconv.Atoi(getFromFile(dbSecretPath, "port"))
	if err != nil {
		return 0
	}
	return n
}

func GetDBName() string {
	if name := getString(dbName, ""); name != "" {
		return name
	}
	return getFromFile(dbSecretPath, "dbname")
}

func GetDBUser() string {
	if user := getString(dbUser, ""); user != "" {
		return user
	}
	return getFromFile(dbSecretPath, "user")
}

func GetDBPassword() string {
	if passwd := getString(dbPassword, ""); passwd != "" {
		return passwd
	}
	return getFromFile(dbSecretPath, "password")
}

func GetDBSslMode() string {
	return getString(dbSslMode, "require")
}

func GetDBMaxOpenConns() int {
	return getInt(dbMaxOpenConns, 100)
}

func GetDBMaxIdleConns() int {
	return getInt(dbMaxIdleConns, 10)
}

func GetDBMaxLifetimeSecond() int {
	return getInt(dbMaxLifetime, 600)
}

func GetDBMaxIdleTimeSecond() int {
	return getInt(dbMaxIdleTimeSecond, 60)
}

func GetDBConnectTimeoutSecond() int {
	return getInt(dbConnectTimeoutSecond, 10)
}

func GetDBRequestTimeoutSecond() int {
	return getInt(dbRequestTimeoutSecond, 20)
}

func GetRedisAddr() string {
	return getString(redisAddr, "127.0.0.1:6379")
}

func GetRedisPassword() string {
	if passwd := getString(redisPassword, ""); passwd != "" {
		return passwd
	}
	return getFromFile(redisSecretPath, "password")
}

func GetRedisDB() int {
	return getInt(redisDB, 0)
}

func GetInferenceEndpoint() string {
	return getString(inferenceEndpoint, "")
}

func GetInferenceTimeout() time.Duration {
	return time.Duration(getInt(inferenceTimeoutSecond, 60)) * time.Second
}

func GetDeployTimeout() time.Duration {
	return time.Duration(getInt(deployTimeoutSecond, 600)) * time.Second
}

func GetDeployPollInterval() time.Duration {
	return time.Duration(getInt(deployPollSecond, 5)) * time.Second
}

func GetModelRepositoryRoot() string {
	return getString(modelRepositoryRoot, "/var/lib/avs/models")
}

func GetMaxConcurrentDeploys() int {
	return getInt(maxConcurrentDeploys, 2)
}

func IsS3Enable() bool {
	return getBool(s3Enable, false)
}

func GetS3AccessKey() string {
	if ak := getString(s3Prefix+s3AccessKey, ""); ak != "" {
		return ak
	}
	return getFromFile(s3SecretPath, s3AccessKey)
}

func GetS3SecretKey() string {
	if sk := getString(s3Prefix+s3SecretKey, ""); sk != "" {
		return sk
	}
	return getFromFile(s3SecretPath, s3SecretKey)
}

func GetS3Bucket() string {
	return getString(s3Bucket, "")
}

func GetS3Endpoint() string {
	return getString(s3Endpoint, "")
}

func GetS3Region() string {
	return getString(s3Region, "us-east-1")
}

func GetS3ArtifactPrefix() string {
	return getString(s3ArtifactPrefix, "models/")
}

func GetUpsertionBatchSize() int {
	return getInt(upsertionBatchSize, 100)
}

func GetReindexBatchSize() int {
	return getInt(reindexBatchSize, 500)
}

func GetImproveGroupSize() int {
	return getInt(improveGroupSize, 32)
}

func GetImprovePollInterval() time.Duration {
	return time.Duration(getInt(improvePollSecond, 10)) * time.Second
}

func GetQueueRetryMaxElapsed() time.Duration {
	return time.Duration(getInt(queueRetryMaxElapsed, 120)) * time.Second
}

func GetQueueRetryMaxInterval() time.Duration {
	return time.Duration(getInt(queueRetryMaxInterval, 15)) * time.Second
}

func GetQueueAbortPollInterval() time.Duration {
	return time.Duration(getInt(queueAbortPollMillis, 500)) * time.Millisecond
}

func GetAdjusterSteps() int {
	return getInt(adjusterSteps, 20)
}

func GetAdjusterStepSize() float64 {
	return getFloat(adjusterStepSize, 0.05)
}

func GetReindexConflictWait() time.Duration {
	return time.Duration(getInt(reindexConflictWaitSecs, 10)) * time.Second
}
