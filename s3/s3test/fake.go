// Package s3test provides an in-memory stand-in for the S3 service client.
package s3test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FakeAPI serves GetObject and ListObjectsV2 from a map of keys. Listing
// is lexical, and continuation tokens are offsets into the matching keys.
type FakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte

	Gets      []string
	ListCalls int

	// GetErr, when set, is returned for the given key.
	GetErr map[string]error
}

// NewFakeAPI returns an empty store.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		objects: make(map[string][]byte),
		GetErr:  make(map[string]error),
	}
}

// Put stores data under key, replacing any earlier value.
func (f *FakeAPI) Put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

// GetObject honors byte ranges the way S3 does, so the transfer manager
// can read from it.
func (f *FakeAPI) GetObject(ctx context.Context, in *s3v2.GetObjectInput, _ ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	f.Gets = append(f.Gets, key)
	if err, ok := f.GetErr[key]; ok {
		return nil, err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	out := &s3v2.GetObjectOutput{}
	if rng := aws.ToString(in.Range); rng != "" {
		var start, end int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", rng, err)
		}
		total := int64(len(data))
		if start >= total {
			return nil, &RangeError{Range: rng}
		}
		if end >= total {
			end = total - 1
		}
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		data = data[start : end+1]
	}

	out.Body = io.NopCloser(bytes.NewReader(data))
	out.ContentLength = aws.Int64(int64(len(data)))
	return out, nil
}

// RangeError is the 416 a store answers to a range past the end of an
// object, including any range of an empty one.
type RangeError struct {
	Range string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %s not satisfiable", e.Range)
}

func (e *RangeError) HTTPStatusCode() int {
	return http.StatusRequestedRangeNotSatisfiable
}

func (f *FakeAPI) ListObjectsV2(ctx context.Context, in *s3v2.ListObjectsV2Input, _ ...func(*s3v2.Options)) (*s3v2.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++

	prefix := aws.ToString(in.Prefix)
	var matching []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			matching = append(matching, k)
		}
	}
	sort.Strings(matching)

	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(*in.ContinuationToken)
		if err != nil {
			return nil, err
		}
		start = n
	}

	limit := 1000
	if in.MaxKeys != nil && *in.MaxKeys > 0 {
		limit = int(*in.MaxKeys)
	}
	end := start + limit
	if end > len(matching) {
		end = len(matching)
	}

	out := &s3v2.ListObjectsV2Output{
		Name:        in.Bucket,
		Prefix:      in.Prefix,
		IsTruncated: aws.Bool(end < len(matching)),
	}
	for _, k := range matching[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	if end < len(matching) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}

	return out, nil
}
