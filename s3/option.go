// Copyright 2022 the go-s3fs Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package s3

// Option holds the connection settings of the object store. Static keys are
// optional; when both are empty the SDK default credential chain is used,
// which includes the EC2 instance profile.
type Option struct {
	URL       string `json:"url"`
	Region    string `json:"region"`
	AccessKey string `json:"accesskey"`
	SecretKey string `json:"secretkey"`
	PageSize  int32  `json:"pagesize"`
	Gunzip    bool   `json:"gunzip"`
}

var (
	defaultOption = Option{
		Region: "us-east-1",
	}
)

type OptionFunc func(*Option)

// WithS3Address points the client at an S3 compatible endpoint. Requests
// are sent path-style.
func WithS3Address(endpoint string) OptionFunc {
	return func(o *Option) {
		o.URL = endpoint
	}
}

func WithS3Keys(accessKey, secretKey string) OptionFunc {
	return func(o *Option) {
		o.AccessKey = accessKey
		o.SecretKey = secretKey
	}
}

func WithRegion(region string) OptionFunc {
	return func(o *Option) {
		if region != "" {
			o.Region = region
		}
	}
}

// WithPageSize caps the number of keys per listing page. Zero keeps the
// store default.
func WithPageSize(n int32) OptionFunc {
	return func(o *Option) {
		o.PageSize = n
	}
}

// WithGunzip inflates records whose key ends in ".gz".
func WithGunzip(on bool) OptionFunc {
	return func(o *Option) {
		o.Gunzip = on
	}
}

func (o *Option) staticKeys() bool {
	return o.AccessKey != "" && o.SecretKey != ""
}

func newOption(opts ...OptionFunc) Option {
	o := defaultOption
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
