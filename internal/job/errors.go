package job

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJob is wrapped by every rejection the builder reports
	ErrInvalidJob = errors.New("invalid print job")
	// ErrNoPages is returned for a job without pages
	ErrNoPages = fmt.Errorf("%w: at least one page is required", ErrInvalidJob)
)

// ItemError reports a rejected draw item
type ItemError struct {
	Page int
	Item int
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("page[%d] item[%d]: %v", e.Page, e.Item, e.Err)
}

func (e *ItemError) Unwrap() []error {
	return []error{ErrInvalidJob, e.Err}
}

// PageError reports a rejected raster page
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("image[%d]: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() []error {
	return []error{ErrInvalidJob, e.Err}
}
