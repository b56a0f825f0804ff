package update

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Form fields recognised on the inbound trigger. No other fields are
// recognised.
const (
	FieldSourceToken       = "sourceToken"
	FieldChangeDescription = "changeDescription"
	FieldDisruptionDelay   = "disruptionDelaySeconds"
)

// Request carries the parameters of one update run. It is constructed
// once per trigger, is immutable for the lifetime of the run, and is
// never persisted (the token is a secret).
type Request struct {
	SourceToken       string
	ChangeDescription string
	DisruptionDelay   time.Duration
}

// ParseRequest validates the inbound form fields and constructs a
// Request. It must run before any stage with side effects: a request
// rejected here causes no external calls at all.
func ParseRequest(form url.Values) (Request, error) {
	for _, field := range []string{FieldSourceToken, FieldChangeDescription, FieldDisruptionDelay} {
		if form.Get(field) == "" {
			return Request{}, errors.Errorf("missing required field %q", field)
		}
	}
	delay := form.Get(FieldDisruptionDelay)
	secs, err := strconv.Atoi(delay)
	if err != nil {
		return Request{}, errors.Wrapf(err, "parsing %s %q", FieldDisruptionDelay, delay)
	}
	if secs < 0 {
		return Request{}, errors.Errorf("%s must be non-negative, got %d", FieldDisruptionDelay, secs)
	}
	return Request{
		SourceToken:       form.Get(FieldSourceToken),
		ChangeDescription: form.Get(FieldChangeDescription),
		DisruptionDelay:   time.Duration(secs) * time.Second,
	}, nil
}
