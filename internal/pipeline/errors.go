package pipeline

import "fmt"

// FetchError is returned after the fetch retry budget is exhausted. It
// carries the URL and the last underlying cause.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// SchemaError indicates the staged data does not match the permanent store's
// expected shape. The merge must fail without touching staging.
type SchemaError struct {
	Table string
	Cause error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema mismatch on %s: %v", e.Table, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// Rejection explains why the validator dropped a candidate. It is not an
// error in the run sense; rejected records are logged and counted.
type Rejection struct {
	Link   string
	Reason string
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Link, r.Reason)
}

// RunError surfaces the stage a run failed in along with the cause.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed in %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
