package classifier

import "fmt"

// Reasons a classification can fail.
const (
	ReasonTransport = "transport"
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
)

// ClassificationError reports a classifier call that did not produce a
// usable result: the API call failed or timed out, the reply was not JSON,
// or the JSON did not satisfy the schema.
type ClassificationError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier %s: %v", e.Reason, e.Err)
	}
	if e.Raw != "" {
		return fmt.Sprintf("classifier %s: %q", e.Reason, e.Raw)
	}
	return "classifier " + e.Reason
}

func (e *ClassificationError) Unwrap() error { return e.Err }
