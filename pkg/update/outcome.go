package update

// Classification says how a pipeline run ended and, for failures,
// whose fault it is: the caller's (validation) or the deployment's
// (sync, build, restart).
type Classification string

const (
	Success           Classification = "success"
	ValidationFailure Classification = "validation-failure"
	SyncFailure       Classification = "sync-failure"
	BuildFailure      Classification = "build-failure"
	RestartFailure    Classification = "restart-failure"
)

// Code returns the internal completion code for this classification:
// 0 for success, 100 for a caller error, 200 for a deployment error.
func (c Classification) Code() int {
	switch c {
	case Success:
		return 0
	case ValidationFailure:
		return 100
	default:
		return 200
	}
}

// HTTPStatus maps the completion code to the transport status the
// invoking webhook layer consumes: code + 300, so 300 success, 400
// validation failure, 500 sync/build/restart failure. The invoker
// relies on these exact values; don't change one side without the
// other.
func (c Classification) HTTPStatus() int {
	return c.Code() + 300
}

// Outcome is the terminal result of one pipeline run. Exactly one
// Outcome is finalized per run: the first stage to fail sets it and no
// later stage executes, let alone overwrites it.
type Outcome struct {
	Classification Classification
	Detail         string
}

func (o Outcome) Code() int       { return o.Classification.Code() }
func (o Outcome) HTTPStatus() int { return o.Classification.HTTPStatus() }
