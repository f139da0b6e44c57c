package services

import "errors"

// Kind classifies an expected, recoverable failure.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindConflict           Kind = "conflict"
	KindPreconditionFailed Kind = "precondition_failed"
)

// Error is an expected outcome with a message that can be shown to the user.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of err, or "" for infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

var (
	ErrUnauthenticated = newError(KindUnauthenticated, "You must be signed in.")

	// Applications
	ErrEmailNotVerified     = newError(KindPreconditionFailed, "You must verify your UH email before applying to projects.")
	ErrMessageTooShort      = newError(KindInvalidInput, "Your pitch must be at least 20 characters.")
	ErrMessageTooLong       = newError(KindInvalidInput, "Your pitch must be at most 2000 characters.")
	ErrRoleRequired         = newError(KindInvalidInput, "Please select a role.")
	ErrInvalidDecision      = newError(KindInvalidInput, "Status must be ACCEPTED or REJECTED.")
	ErrProjectNotFound      = newError(KindNotFound, "Project not found.")
	ErrRoleNotFound         = newError(KindNotFound, "Role not found.")
	ErrApplicationNotFound  = newError(KindNotFound, "Application not found.")
	ErrProjectNotAccepting  = newError(KindConflict, "This project is not currently accepting applications.")
	ErrOwnProject           = newError(KindForbidden, "You cannot apply to your own project.")
	ErrAlreadyApplied       = newError(KindConflict, "You have already applied for this role.")
	ErrRoleFilled           = newError(KindConflict, "This role is already full.")
	ErrNotProjectOwner      = newError(KindForbidden, "Only the project owner can manage applications.")
	ErrNotApplicant         = newError(KindForbidden, "You can only withdraw your own applications.")
	ErrApplicationDecided   = newError(KindPreconditionFailed, "This application has already been decided.")
	ErrWithdrawNotPending   = newError(KindPreconditionFailed, "You can only withdraw pending applications.")
	ErrProjectEditForbidden = newError(KindForbidden, "You don't have permission to modify this project.")
	ErrNoRepoLinked         = newError(KindPreconditionFailed, "No GitHub repository linked.")

	// Profiles and verification
	ErrUserNotFound       = newError(KindNotFound, "User not found.")
	ErrInvalidUsername    = newError(KindInvalidInput, "Username must be 3-30 characters and contain only letters, numbers, and hyphens.")
	ErrUsernameTaken      = newError(KindConflict, "This username is already taken.")
	ErrNotCampusEmail     = newError(KindInvalidInput, "Please provide a valid UH email address (@uh.edu or @cougarnet.uh.edu).")
	ErrEmailClaimed       = newError(KindConflict, "This email is already verified by another account.")
	ErrInvalidCode        = newError(KindInvalidInput, "Invalid or expired verification code.")
	ErrAlreadyVerified    = newError(KindPreconditionFailed, "Your UH email is already verified.")
	ErrMissingEmailOrCode = newError(KindInvalidInput, "Email and code are required.")

	// Auth
	ErrInvalidToken       = newError(KindUnauthenticated, "Invalid or expired refresh token.")
	ErrGitHubTokenMissing = newError(KindInvalidInput, "GitHub access token is required.")
	ErrGitHubRejected     = newError(KindUnauthenticated, "GitHub rejected the access token.")
	ErrGitHubNotConnected = newError(KindPreconditionFailed, "GitHub not connected.")
)

// invalid builds an InvalidInput error for form validation messages.
func invalid(msg string) *Error {
	return newError(KindInvalidInput, msg)
}
