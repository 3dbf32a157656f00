package domain

import "github.com/juju/errors"

var (
	// ErrModuleNotFound is returned when a referenced module does not exist.
	ErrModuleNotFound = errors.NotFoundf("module")
	// ErrLessonNotFound is returned when a lesson is absent or belongs to another module.
	ErrLessonNotFound = errors.NotFoundf("lesson")
	// ErrQuestionNotFound indicates a question ID is invalid.
	ErrQuestionNotFound = errors.NotFoundf("question")
	// ErrAssignmentNotFound indicates an assignment ID is invalid.
	ErrAssignmentNotFound = errors.NotFoundf("assignment")
	// ErrSubmissionNotFound indicates a submission ID is invalid.
	ErrSubmissionNotFound = errors.NotFoundf("submission")
	// ErrUserNotFound is returned when the session user no longer exists.
	ErrUserNotFound = errors.NotFoundf("user")

	// ErrModuleLocked is returned when a student acts on a locked module.
	ErrModuleLocked = errors.Forbiddenf("module is locked")
	// ErrAdminRequired is returned for admin-only operations.
	ErrAdminRequired = errors.Forbiddenf("admin access required")

	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.Unauthorizedf("invalid email or password")
	// ErrNoSession is returned when a request carries no valid session.
	ErrNoSession = errors.Unauthorizedf("authentication required")
)
