package selection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSelectionSubmitted is returned by every mutation once the selection is locked,
	// including a second submission.
	ErrSelectionSubmitted = errors.New("selection already submitted")
	// ErrInvalidSubmission matches *InvalidSubmissionError.
	ErrInvalidSubmission = errors.New("selection does not match category limits")
	// ErrUnknownCategory signals a category outside album/cover/poster.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrAssetNotInCatalog signals a toggle for an asset the customer does not own.
	ErrAssetNotInCatalog = errors.New("asset not in customer catalog")
	// ErrInvalidLimits signals an unusable limits configuration.
	ErrInvalidLimits = errors.New("invalid category limits")
)

// InvalidSubmissionError lists the categories that are off target.
type InvalidSubmissionError struct {
	Deviations []Deviation
}

func (e *InvalidSubmissionError) Error() string {
	parts := make([]string, 0, len(e.Deviations))
	for _, d := range e.Deviations {
		parts = append(parts, fmt.Sprintf("%s %d/%d", d.Category, d.Selected, d.Required))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidSubmission, strings.Join(parts, ", "))
}

func (e *InvalidSubmissionError) Is(target error) bool {
	return target == ErrInvalidSubmission
}

// Categories returns the offending category names.
func (e *InvalidSubmissionError) Categories() []Category {
	out := make([]Category, 0, len(e.Deviations))
	for _, d := range e.Deviations {
		out = append(out, d.Category)
	}
	return out
}
