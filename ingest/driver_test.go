package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThierryZhou/go-s3import/crosswalk"
	"github.com/ThierryZhou/go-s3import/metrics"
	"github.com/ThierryZhou/go-s3import/registry"
	"github.com/ThierryZhou/go-s3import/s3"
	"github.com/ThierryZhou/go-s3import/s3/s3test"
)

const (
	testBucket   = "bucket"
	testPrefix   = "rda"
	testSnapshot = "rda/2023-01-01/"
)

type fakeUploader struct {
	payloads []string
	respond  func(n int, payload string) ([]byte, error)
}

func (f *fakeUploader) Upload(ctx context.Context, payload string) ([]byte, error) {
	f.payloads = append(f.payloads, payload)
	if f.respond == nil {
		return []byte(`{"status":"OK","message":"imported"}`), nil
	}
	return f.respond(len(f.payloads), payload)
}

func rejectPayload(payload string, status, message string) func(int, string) ([]byte, error) {
	return func(_ int, p string) ([]byte, error) {
		if p == payload {
			return []byte(fmt.Sprintf(`{"status":%q,"message":%q}`, status, message)), nil
		}
		return []byte(`{"status":"OK","message":"imported"}`), nil
	}
}

// newStore seeds a snapshot with one record per name; the record body is
// "<name/>" so uploads can be traced back to keys.
func newStore(names ...string) *s3test.FakeAPI {
	api := s3test.NewFakeAPI()
	api.Put(testPrefix+"/latest.txt", []byte("2023-01-01\n"))
	for _, n := range names {
		api.Put(testSnapshot+n+".xml", []byte("<"+n+"/>"))
	}
	return api
}

func newDriver(api *s3test.FakeAPI, up Uploader, pageSize int32) (*Driver, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return &Driver{
		Bucket:   testBucket,
		Prefix:   testPrefix,
		Store:    s3.NewFromAPI(api, s3.WithPageSize(pageSize)),
		Uploader: up,
		Log:      logger,
	}, hook
}

func TestRunUploadsInOrder(t *testing.T) {
	api := newStore("a", "b")
	up := &fakeUploader{}
	d, hook := newDriver(api, up, 0)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"<a/>", "<b/>"}, up.payloads)
	assert.Equal(t, Summary{Snapshot: testSnapshot, Pages: 1, Keys: 2, Uploaded: 2}, sum)

	var processed []string
	for _, e := range hook.AllEntries() {
		if e.Level == log.InfoLevel && e.Message == "imported" {
			processed = append(processed, e.Message)
		}
	}
	assert.Len(t, processed, 2)
}

func TestRunStatusErrorAborts(t *testing.T) {
	api := newStore("a", "b", "c")
	up := &fakeUploader{respond: func(int, string) ([]byte, error) {
		return nil, &registry.StatusError{StatusCode: http.StatusInternalServerError}
	}}
	d, _ := newDriver(api, up, 0)

	sum, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindProtocol, KindOf(err))

	var serr *registry.StatusError
	assert.True(t, errors.As(err, &serr))

	assert.Len(t, up.payloads, 1)
	assert.Equal(t, []string{"rda/latest.txt", testSnapshot + "a.xml"}, api.Gets)
	assert.Equal(t, 1, sum.Keys)
	assert.Equal(t, 0, sum.Uploaded)
}

func TestRunRejectSkipsRestOfPage(t *testing.T) {
	// pages: [a b c d] [e f]
	api := newStore("a", "b", "c", "d", "e", "f")
	up := &fakeUploader{respond: rejectPayload("<c/>", "ERROR", "duplicate")}
	d, hook := newDriver(api, up, 4)
	m := metrics.NewRun("rda")
	d.Metrics = m

	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"<a/>", "<b/>", "<c/>", "<e/>", "<f/>"}, up.payloads)
	assert.Equal(t, Summary{Snapshot: testSnapshot, Pages: 2, Keys: 5, Uploaded: 4, Rejected: 1, Skipped: 1}, sum)
	assert.NotContains(t, api.Gets, testSnapshot+"d.xml")

	var rejected []*log.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == log.ErrorLevel {
			rejected = append(rejected, e)
		}
	}
	require.Len(t, rejected, 1)
	assert.Equal(t, "duplicate", rejected[0].Message)
	assert.Equal(t, testSnapshot+"c.xml", rejected[0].Data["key"])
}

func TestRunRejectLastKeyOfPage(t *testing.T) {
	api := newStore("a", "b", "c")
	up := &fakeUploader{respond: rejectPayload("<b/>", "ERROR", "bad")}
	d, _ := newDriver(api, up, 2)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"<a/>", "<b/>", "<c/>"}, up.payloads)
	assert.Equal(t, 0, sum.Skipped)
	assert.Equal(t, 2, sum.Pages)
}

func TestRunStopOnReject(t *testing.T) {
	api := newStore("a", "b", "c", "d", "e", "f")
	up := &fakeUploader{respond: rejectPayload("<c/>", "ERROR", "duplicate")}
	d, _ := newDriver(api, up, 4)
	d.StopOnReject = true

	sum, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, []string{"<a/>", "<b/>", "<c/>"}, up.payloads)
	assert.Equal(t, 1, sum.Pages)
}

func TestRunFailures(t *testing.T) {
	badTransform, err := crosswalk.Compile("t", `{{ .Text "//x" }}`)
	require.NoError(t, err)

	testCase := []struct {
		name     string
		setup    func(api *s3test.FakeAPI, d *Driver, up *fakeUploader)
		wantKind Kind
		uploads  int
	}{
		{
			name: "missing marker",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				d.Prefix = "elsewhere"
			},
			wantKind: KindStore,
		},
		{
			name: "unreadable record",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				api.GetErr[testSnapshot+"b.xml"] = errors.New("connection reset")
			},
			wantKind: KindStore,
			uploads:  1,
		},
		{
			name: "malformed record",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				api.Put(testSnapshot+"b.xml", []byte("<b><x></b>"))
				d.Transformer = badTransform
			},
			wantKind: KindTransform,
			uploads:  1,
		},
		{
			name: "reply is not json",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				up.respond = func(int, string) ([]byte, error) { return []byte("<html/>"), nil }
			},
			wantKind: KindProtocol,
			uploads:  1,
		},
		{
			name: "transport failure",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				up.respond = func(int, string) ([]byte, error) { return nil, errors.New("dial tcp: refused") }
			},
			wantKind: KindProtocol,
			uploads:  1,
		},
		{
			name: "no uploader",
			setup: func(api *s3test.FakeAPI, d *Driver, up *fakeUploader) {
				d.Uploader = nil
			},
			wantKind: KindConfig,
		},
	}
	for _, tt := range testCase {
		t.Run(tt.name, func(t *testing.T) {
			api := newStore("a", "b", "c")
			up := &fakeUploader{}
			d, _ := newDriver(api, up, 0)
			tt.setup(api, d, up)

			var states []State
			d.OnTransition = func(_, to State) { states = append(states, to) }

			_, err := d.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Len(t, up.payloads, tt.uploads)
			assert.NotContains(t, states, StateDone)
			if len(states) > 0 {
				assert.Equal(t, StateFail, states[len(states)-1])
			}
		})
	}
}

func TestRunDryRun(t *testing.T) {
	api := newStore("a", "b")
	d, _ := newDriver(api, nil, 0)
	d.Uploader = nil
	d.DryRun = true

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Keys)
	assert.Equal(t, 0, sum.Uploaded)
}

func TestRunEmptySnapshot(t *testing.T) {
	api := newStore()
	up := &fakeUploader{}
	d, _ := newDriver(api, up, 0)

	var states []State
	d.OnTransition = func(_, to State) { states = append(states, to) }

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, up.payloads)
	assert.Equal(t, 1, sum.Pages)
	assert.Equal(t, []State{StateResolvePointer, StateListPage, StateForEachKey, StateAdvancePage, StateDone}, states)
}

func TestRunEndToEnd(t *testing.T) {
	var ids, docs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(b))
		ids = append(ids, values.Get("id"))
		docs = append(docs, values.Get("xml"))
		_, _ = w.Write([]byte(`{"status":"OK","message":"ok"}`))
	}))
	defer srv.Close()

	tr, err := crosswalk.Compile("rif", `<registryObject>{{ .Text "//title" | xmlescape }}</registryObject>`)
	require.NoError(t, err)

	up, err := registry.NewUploader(registry.Config{BaseURL: srv.URL, SourceID: "rda", SessionID: "s"})
	require.NoError(t, err)

	api := s3test.NewFakeAPI()
	api.Put("rda/latest.txt", []byte("v1"))
	api.Put("rda/v1/1.xml", []byte("<r><title>Tom &amp; Jerry</title></r>"))
	api.Put("rda/v1/2.xml", []byte("<r><title>Ünïcode</title></r>"))

	d, _ := newDriver(api, up, 1)
	d.Transformer = tr

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Uploaded)
	assert.Equal(t, []string{"rda", "rda"}, ids)
	assert.Equal(t, []string{
		"<registryObject>Tom &amp; Jerry</registryObject>",
		"<registryObject>Ünïcode</registryObject>",
	}, docs)
}

func TestRunGzipKeys(t *testing.T) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte("<z/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	testCase := []struct {
		name  string
		body  []byte
		opts  []s3.OptionFunc
		want  string
		fails bool
	}{
		{name: "passed through by default", body: []byte("<a/>"), want: "<a/>"},
		{name: "inflated when enabled", body: compressed.Bytes(), opts: []s3.OptionFunc{s3.WithGunzip(true)}, want: "<z/>"},
		{name: "not gzip when enabled", body: []byte("<a/>"), opts: []s3.OptionFunc{s3.WithGunzip(true)}, fails: true},
	}
	for _, tt := range testCase {
		t.Run(tt.name, func(t *testing.T) {
			api := newStore()
			api.Put(testSnapshot+"a.xml.gz", tt.body)
			up := &fakeUploader{}
			d, _ := newDriver(api, up, 0)
			d.Store = s3.NewFromAPI(api, tt.opts...)

			_, err := d.Run(context.Background())
			if tt.fails {
				require.Error(t, err)
				assert.Equal(t, KindStore, KindOf(err))
				assert.Empty(t, up.payloads)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, up.payloads)
		})
	}
}
