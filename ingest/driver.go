// Package ingest drives one import run: it resolves the current snapshot,
// walks its keys page by page and pushes every record through transform,
// upload and result interpretation, strictly one key at a time.
package ingest

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ThierryZhou/go-s3import/crosswalk"
	"github.com/ThierryZhou/go-s3import/metrics"
	"github.com/ThierryZhou/go-s3import/registry"
	"github.com/ThierryZhou/go-s3import/s3"
)

// Store is the object store a run reads from. *s3.Client implements it.
type Store interface {
	Fetcher
	NewPager(bucket, prefix string) *s3.Pager
}

// Transformer turns a raw record into the uploaded payload.
// *crosswalk.Transformer implements it.
type Transformer interface {
	Transform(key string, raw []byte) (string, error)
}

// Uploader submits one payload and returns the 200 response body.
// *registry.Uploader implements it.
type Uploader interface {
	Upload(ctx context.Context, payload string) ([]byte, error)
}

// State is a step of the run.
type State int

const (
	StateInit State = iota
	StateResolvePointer
	StateListPage
	StateForEachKey
	StateAdvancePage
	StateDone
	StateFail
)

var stateNames = [...]string{
	StateInit:           "Init",
	StateResolvePointer: "ResolvePointer",
	StateListPage:       "ListPage",
	StateForEachKey:     "ForEachKey",
	StateAdvancePage:    "AdvancePage",
	StateDone:           "Done",
	StateFail:           "Fail",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Summary counts what a run did, including a failed one up to the failure.
type Summary struct {
	Snapshot string
	Pages    int
	Keys     int
	Uploaded int
	Rejected int
	// Skipped counts keys left unprocessed on pages cut short by a rejection.
	Skipped int
}

// Driver holds the dependencies of a run. None of them are modified while
// it runs.
type Driver struct {
	Bucket string
	Prefix string

	Store       Store
	Transformer Transformer // nil passes records through as UTF-8
	Uploader    Uploader
	Metrics     *metrics.Run

	// StopOnReject makes a rejected record fatal. When false a rejection
	// only ends the current page.
	StopOnReject bool

	// DryRun transforms every record but uploads nothing.
	DryRun bool

	Log log.FieldLogger

	// OnTransition, if set, is called for every state change.
	OnTransition func(from, to State)
}

// Run executes the import. A non-nil error is an *Error (see KindOf) and
// means the run stopped at the key that failed.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	r := &run{Driver: d, log: d.Log, metrics: d.Metrics, transformer: d.Transformer}
	if r.log == nil {
		r.log = log.StandardLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRun("")
	}
	if r.transformer == nil {
		r.transformer = (*crosswalk.Transformer)(nil)
	}

	if err := d.check(); err != nil {
		return Summary{}, err
	}

	state := StateInit
	for state != StateDone && state != StateFail {
		next := r.step(ctx, state)
		r.log.Debugf("state %s -> %s", state, next)
		if d.OnTransition != nil {
			d.OnTransition(state, next)
		}
		state = next
	}

	if state == StateFail {
		return r.sum, r.err
	}

	r.metrics.Succeeded()
	return r.sum, nil
}

func (d *Driver) check() error {
	switch {
	case d.Bucket == "":
		return Wrap(KindConfig, "driver", fmt.Errorf("bucket is empty"))
	case d.Prefix == "":
		return Wrap(KindConfig, "driver", fmt.Errorf("prefix is empty"))
	case d.Store == nil:
		return Wrap(KindConfig, "driver", fmt.Errorf("no object store"))
	case d.Uploader == nil && !d.DryRun:
		return Wrap(KindConfig, "driver", fmt.Errorf("no uploader"))
	}
	return nil
}

type run struct {
	*Driver
	log         log.FieldLogger
	metrics     *metrics.Run
	transformer Transformer

	sum   Summary
	err   error
	pager *s3.Pager
	page  *s3.Page
}

func (r *run) fail(err error) State {
	r.err = err
	return StateFail
}

func (r *run) step(ctx context.Context, state State) State {
	switch state {
	case StateInit:
		return StateResolvePointer

	case StateResolvePointer:
		snapshot, err := ResolvePointer(ctx, r.Store, r.Bucket, r.Prefix)
		if err != nil {
			return r.fail(err)
		}
		r.sum.Snapshot = snapshot
		r.log.Infof("S3 Repository: %s", snapshot)
		r.pager = r.Store.NewPager(r.Bucket, snapshot)
		return StateListPage

	case StateListPage:
		page, err := r.pager.NextPage(ctx)
		if err != nil {
			return r.fail(Wrap(KindStore, "list objects", err))
		}
		r.page = page
		r.sum.Pages++
		r.metrics.Page()
		return StateForEachKey

	case StateForEachKey:
		keys := r.page.Keys()
		for i, key := range keys {
			verdict, err := r.process(ctx, key)
			if err != nil {
				return r.fail(err)
			}
			if verdict == registry.Reject {
				skipped := len(keys) - i - 1
				if skipped > 0 {
					r.log.Warnf("Skipping %d remaining keys of page %d", skipped, r.sum.Pages)
				}
				r.sum.Skipped += skipped
				r.metrics.Skipped(skipped)
				break
			}
		}
		return StateAdvancePage

	case StateAdvancePage:
		if r.page.More {
			return StateListPage
		}
		return StateDone
	}

	return r.fail(fmt.Errorf("unexpected state %s", state))
}

// process runs one key through fetch, transform, upload and interpret.
func (r *run) process(ctx context.Context, key string) (registry.Verdict, error) {
	r.log.Infof("Processing file: %s", key)
	r.sum.Keys++

	raw, err := r.Store.Fetch(ctx, r.Bucket, key)
	if err != nil {
		return registry.Reject, wrapKey(KindStore, "fetch", key, err)
	}

	payload, err := r.transformer.Transform(key, raw)
	if err != nil {
		return registry.Reject, wrapKey(KindTransform, "transform", key, err)
	}

	if r.DryRun {
		r.log.WithField("bytes", len(payload)).Infof("Dry run, not uploading %s", key)
		r.metrics.Record(metrics.ResultDryRun)
		return registry.Continue, nil
	}

	body, err := r.Uploader.Upload(ctx, payload)
	if err != nil {
		return registry.Reject, wrapKey(KindProtocol, "upload", key, err)
	}

	result, verdict, err := registry.Interpret(body)
	if err != nil {
		return registry.Reject, wrapKey(KindProtocol, "interpret", key, err)
	}

	if verdict == registry.Continue {
		r.sum.Uploaded++
		r.metrics.Record(metrics.ResultOK)
		r.log.Info(result.Message)
		return registry.Continue, nil
	}

	r.sum.Rejected++
	r.metrics.Record(metrics.ResultRejected)
	r.log.WithFields(log.Fields{"key": key, "status": result.Status}).Error(result.Message)
	if r.StopOnReject {
		return registry.Reject, wrapKey(KindProtocol, "import", key, fmt.Errorf("%w: %s", ErrRejected, result.Message))
	}

	return registry.Reject, nil
}
