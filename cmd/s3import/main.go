// Copyright 2022 the go-s3fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// s3import uploads the latest S3 snapshot of metadata records to a
// registry import endpoint.
package main

import "github.com/ThierryZhou/go-s3import/cmd"

func main() {
	cmd.Main()
}
