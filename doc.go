// Copyright 2022 the go-s3fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package s3import is a one-shot batch importer: it resolves the latest
// snapshot of metadata records kept in an S3 bucket, optionally converts
// each record with a crosswalk template and uploads it to a registry.
//
// The command lives in cmd/s3import; the pipeline in package ingest.
package s3import
