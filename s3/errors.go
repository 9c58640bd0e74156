package s3

import "errors"

var (
	ErrObjectNotFound error = errors.New("object does not exist")
	ErrBucketNotFound error = errors.New("bucket does not exist")
)
