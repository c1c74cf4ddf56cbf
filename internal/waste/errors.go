package waste

import "errors"

var (
	// ErrEncoding means the image could not be prepared for transport.
	ErrEncoding = errors.New("image encoding failed")
	// ErrUpstream covers network errors, timeouts and non-2xx replies from a model.
	ErrUpstream = errors.New("upstream model error")
	// ErrSchema means a model replied but not in the expected shape.
	ErrSchema = errors.New("unexpected model response schema")
	// ErrNoSelection is returned by confirm when nothing is selected.
	ErrNoSelection = errors.New("no candidate selected")
	// ErrInvalidSelection is returned when selecting a candidate outside the result.
	ErrInvalidSelection = errors.New("candidate not in classification result")
	// ErrAlreadyClaimed is returned on a second claim of the same report.
	ErrAlreadyClaimed = errors.New("report already claimed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrEncoding, "encoding_error"},
	{ErrUpstream, "upstream_error"},
	{ErrSchema, "schema_error"},
	{ErrNoSelection, "no_selection"},
	{ErrInvalidSelection, "invalid_selection"},
	{ErrAlreadyClaimed, "already_claimed"},
}

// Kind names the pipeline error kind wrapped by err, or "" when err is nil
// and "internal" when it matches none of them.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Fatal reports whether err ends a classification session, as opposed to a
// caller mistake that leaves it untouched.
func Fatal(err error) bool {
	return errors.Is(err, ErrEncoding) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrSchema)
}
