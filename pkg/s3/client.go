/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/AVS/pkg/config"
	avserrors "github.com/AMD-AIG-AIMA/AVS/pkg/errors"
)

var (
	once     sync.Once
	instance Interface
)

// Interface is the artifact store of the deploy and fine-tune workflows.
// Model artifacts live under <prefix><model_id>/.
type Interface interface {
	EnsureBucket(ctx context.Context) error
	ListArtifacts(ctx context.Context, modelId string) ([]string, error)
	DownloadArtifacts(ctx context.Context, modelId, destDir string) (int, error)
	UploadArtifact(ctx context.Context, modelId, name string, body *os.File) error
	DeleteArtifacts(ctx context.Context, modelId string) error
}

type Client struct {
	s3     *awss3.Client
	bucket string
	prefix string
}

// NewClient returns the singleton artifact client, nil when S3 is disabled
// by configuration.
func NewClient(ctx context.Context) Interface {
	once.Do(func() {
		if instance != nil {
			return
		}
		instance = newClient(ctx)
	})
	return instance
}

func newClient(ctx context.Context) Interface {
	if !config.IsS3Enable() {
		klog.Infof("s3 artifact store is disabled")
		return nil
	}
	cli, err := buildClient(ctx)
	if err != nil {
		klog.ErrorS(err, "failed to init s3 client")
		return nil
	}
	if err = cli.EnsureBucket(ctx); err != nil {
		klog.ErrorS(err, "failed to ensure bucket", "bucket", cli.bucket)
		return nil
	}
	klog.Infof("init s3 client successfully, endpoint: %s", config.GetS3Endpoint())
	return cli
}

func buildClient(ctx context.Context) (*Client, error) {
	bucket := config.GetS3Bucket()
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.GetS3Region()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.GetS3AccessKey(), config.GetS3SecretKey(), "")),
	)
	if err != nil {
		return nil, err
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpoint := config.GetS3Endpoint(); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{
		s3:     client,
		bucket: bucket,
		prefix: config.GetS3ArtifactPrefix(),
	}, nil
}

func (c *Client) modelPrefix(modelId string) string {
	return c.prefix + modelId + "/"
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if _, err = c.s3.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return err
	}
	klog.Infof("created bucket %s successfully", c.bucket)
	return nil
}

// ListArtifacts returns the object keys of the model's artifacts.
func (c *Client) ListArtifacts(ctx context.Context, modelId string) ([]string, error) {
	prefix := c.modelPrefix(modelId)
	paginator := awss3.NewListObjectsV2Paginator(c.s3, &awss3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, avserrors.NewUnavailable(fmt.Sprintf(
				"failed to list artifacts of model %s: %v", modelId, err))
		}
		for _, object := range page.Contents {
			if object.Key != nil && !strings.HasSuffix(*object.Key, "/") {
				keys = append(keys, *object.Key)
			}
		}
	}
	return keys, nil
}

// DownloadArtifacts fetches every artifact of the model into destDir,
// preserving the key layout below the model prefix. Returns the number of
// files written.
func (c *Client) DownloadArtifacts(ctx context.Context, modelId, destDir string) (int, error) {
	keys, err := c.ListArtifacts(ctx, modelId)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, avserrors.NewNotFound(avserrors.ModelKindName, modelId)
	}
	downloader := manager.NewDownloader(c.s3)
	prefix := c.modelPrefix(modelId)
	for _, key := range keys {
		relative := strings.TrimPrefix(key, prefix)
		target := filepath.Join(destDir, filepath.FromSlash(relative))
		if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, err
		}
		file, err := os.Create(target)
		if err != nil {
			return 0, err
		}
		_, err = downloader.Download(ctx, file, &awss3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		closeErr := file.Close()
		if err != nil {
			return 0, avserrors.NewUnavailable(fmt.Sprintf(
				"failed to download artifact %s: %v", key, err))
		}
		if closeErr != nil {
			return 0, closeErr
		}
	}
	return len(keys), nil
}

// UploadArtifact stores one file under the model's prefix.
func (c *Client) UploadArtifact(ctx context.Context, modelId, name string, body *os.File) error {
	uploader := manager.NewUploader(c.s3)
	_, err := uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path.Join(c.modelPrefix(modelId), name)),
		Body:   body,
	})
	if err != nil {
		return avserrors.NewUnavailable(fmt.Sprintf(
			"failed to upload artifact %s of model %s: %v", name, modelId, err))
	}
	return nil
}

// DeleteArtifacts removes every artifact of the model.
func (c *Client) DeleteArtifacts(ctx context.Context, modelId string) error {
	keys, err := c.ListArtifacts(ctx, modelId)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err = c.s3.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return avserrors.NewUnavailable(fmt.Sprintf(
				"failed to delete artifact %s: %v", key, err))
		}
	}
	return nil
}
