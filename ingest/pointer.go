package ingest

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// MarkerName is the object under the prefix that names the current snapshot.
const MarkerName = "latest.txt"

// Fetcher reads a whole object.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// MarkerKey returns the key of the snapshot marker for prefix.
func MarkerKey(prefix string) string {
	return prefix + "/" + MarkerName
}

// SnapshotPrefix builds the listing prefix from the marker content.
func SnapshotPrefix(prefix, marker string) string {
	return prefix + "/" + strings.TrimSpace(marker) + "/"
}

// ResolvePointer reads the marker object and returns the prefix of the
// snapshot it names. There is no fallback: a missing marker is a
// KindStore error.
func ResolvePointer(ctx context.Context, f Fetcher, bucket, prefix string) (string, error) {
	key := MarkerKey(prefix)
	data, err := f.Fetch(ctx, bucket, key)
	if err != nil {
		return "", wrapKey(KindStore, "read marker", key, err)
	}

	text, err := decodeText(data)
	if err != nil {
		return "", wrapKey(KindStore, "decode marker", key, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", wrapKey(KindStore, "read marker", key, errEmptyMarker)
	}

	return SnapshotPrefix(prefix, text), nil
}

var errEmptyMarker = errors.New("marker is empty")

func decodeText(data []byte) (string, error) {
	out, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
