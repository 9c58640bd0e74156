// Copyright 2022 the go-s3fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"github.com/klauspost/compress/gzip"
)

// API is the part of the S3 service client used by the importer.
// *s3v2.Client implements it.
type API interface {
	s3v2.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
}

// Client reads records and listings from one object store. It is safe to
// reuse across the whole run; nothing in it changes after construction.
type Client struct {
	api        API
	downloader *manager.Downloader
	o          Option
}

// sdkLogger forwards SDK diagnostics to logrus.
var sdkLogger = logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
	switch classification {
	case logging.Warn:
		log.Warnf(format, v...)
	default:
		log.Debugf(format, v...)
	}
})

// NewS3Client builds a client from the SDK default configuration. Every
// call is attempted exactly once.
func NewS3Client(ctx context.Context, opts ...OptionFunc) (*Client, error) {
	o := newOption(opts...)

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(o.Region),
		config.WithLogger(sdkLogger),
		config.WithRetryer(func() aws.Retryer {
			return aws.NopRetryer{}
		}),
	}

	if o.staticKeys() {
		log.Warn("Connecting to AWS via Access and Secret Keys. This is not safe practice, consider to use IAM Role instead.")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""))))
	} else {
		log.Info("Connecting to AWS via the default credential chain")
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3v2.NewFromConfig(cfg, func(so *s3v2.Options) {
		if o.URL != "" {
			so.BaseEndpoint = aws.String(o.URL)
			so.UsePathStyle = true
		}
	})

	return newClient(client, o), nil
}

// NewFromAPI wraps an existing service client.
func NewFromAPI(api API, opts ...OptionFunc) *Client {
	return newClient(api, newOption(opts...))
}

func newClient(api API, o Option) *Client {
	// records are read one after another, never in parallel parts
	downloader := manager.NewDownloader(api, func(d *manager.Downloader) {
		d.Concurrency = 1
	})

	return &Client{api: api, downloader: downloader, o: o}
}

// Fetch reads the whole content of bucket/key. With WithGunzip, keys ending
// in ".gz" are inflated before they are returned; otherwise the bytes are
// returned as stored.
func (c *Client) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	input := &s3v2.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	buf := manager.NewWriteAtBuffer(nil)
	n, err := c.downloader.Download(ctx, buf, input)
	if err != nil {
		return nil, classifyError("Get Object", bucket, key, err)
	}
	data := buf.Bytes()[:n]

	if c.o.Gunzip && strings.HasSuffix(key, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", key, err)
		}
		defer zr.Close()

		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", key, err)
		}
	}

	return data, nil
}

func classifyError(op, bucket, key string, err error) error {
	var nsb *types.NoSuchBucket
	var nsk *types.NoSuchKey
	switch {
	case errors.As(err, &nsb):
		log.Warnf("%s(%s) from Bucket(%s) with AWS S3 Error: %s", op, key, bucket, nsb.ErrorMessage())
		return fmt.Errorf("%w: %s: %w", ErrBucketNotFound, bucket, err)
	case errors.As(err, &nsk):
		log.Warnf("%s(%s) from Bucket(%s) with AWS S3 Error: %s", op, key, bucket, nsk.ErrorMessage())
		return fmt.Errorf("%w: %s/%s: %w", ErrObjectNotFound, bucket, key, err)
	default:
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			log.Warnf("%s(%s) from Bucket(%s) with Unknown Error:%s", op, key, bucket, apiErr.ErrorMessage())
		}
	}

	return err
}
