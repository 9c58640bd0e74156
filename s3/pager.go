package s3

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Pager walks the keys under a prefix one listing page at a time. It is
// single-pass: once HasMorePages reports false it stays false.
type Pager struct {
	bucket string
	p      *s3v2.ListObjectsV2Paginator
}

// NewPager starts a listing of bucket/prefix with no continuation marker.
func (c *Client) NewPager(bucket, prefix string) *Pager {
	input := &s3v2.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	p := s3v2.NewListObjectsV2Paginator(c.api, input, func(po *s3v2.ListObjectsV2PaginatorOptions) {
		po.Limit = c.o.PageSize
		po.StopOnDuplicateToken = true
	})

	return &Pager{bucket: bucket, p: p}
}

// HasMorePages reports whether NextPage would issue another request.
func (pg *Pager) HasMorePages() bool {
	return pg.p.HasMorePages()
}

// NextPage fetches the next page. Directory placeholders (empty keys
// ending in "/") are left out and logged at debug level.
func (pg *Pager) NextPage(ctx context.Context) (*Page, error) {
	out, err := pg.p.NextPage(ctx)
	if err != nil {
		return nil, classifyError("List Objects", pg.bucket, "", err)
	}

	page := &Page{
		Marker: aws.ToString(out.NextContinuationToken),
		More:   pg.p.HasMorePages(),
	}
	for _, item := range out.Contents {
		key := aws.ToString(item.Key)
		size := aws.ToInt64(item.Size)
		if strings.HasSuffix(key, "/") && size == 0 {
			log.Debugf("Skipping directory placeholder %s in Bucket(%s)", key, pg.bucket)
			continue
		}
		page.Objects = append(page.Objects, Object{
			Bucket: pg.bucket,
			Key:    key,
			Size:   size,
		})
	}

	return page, nil
}
