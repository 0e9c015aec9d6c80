package pipeline

import "fmt"

// FetchError marks a page or seed URL that could not be retrieved. It is
// counted against the run's stats and never aborts sibling pages.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError marks a page whose extraction output stayed malformed
// after the retry budget was spent. The page contributes zero candidates.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PreconditionError is the only error class that aborts a run: a collaborator
// failed its preflight check before any page work started.
type PreconditionError struct {
	Service string
	Err     error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %s: %v", e.Service, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }
