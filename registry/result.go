package registry

import (
	"encoding/json"
	"fmt"
)

// StatusOK is the only status that marks an import as accepted.
const StatusOK = "OK"

// Result is the endpoint's reply to one upload.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the registry accepted the record. The comparison is
// exact: "ok" or " OK" are rejections.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Verdict tells the driver what to do after a reply.
type Verdict int

const (
	// Continue with the next key.
	Continue Verdict = iota
	// Reject stops the remaining keys of the current page.
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Interpret decodes a 200 response body.
func Interpret(body []byte) (Result, Verdict, error) {
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, Reject, fmt.Errorf("decode import result: %w", err)
	}
	if !r.OK() {
		return r, Reject, nil
	}
	return r, Continue, nil
}
