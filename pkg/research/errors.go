package research

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid research request")
	ErrPlanningFailure     = errors.New("research planning failed")
	ErrSearchFailure       = errors.New("search failed")
	ErrAnalysisFailure     = errors.New("analysis failed")
	ErrReportFailure       = errors.New("report generation failed")
	ErrRunNotFound         = errors.New("research run not found")
	ErrRecoveryUnavailable = errors.New("nothing to recover")
)
