package domain

import "errors"

var (
	// ErrNotFound is returned when an entity the operation acts on does not exist.
	ErrNotFound = errors.New("survey not found")
	// ErrQuestionNotFound indicates a question ID is not part of the entity.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates an option index outside the question's option list.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrEmptyPool is returned by winner selection when nobody chose the option.
	ErrEmptyPool = errors.New("no votes for this option")
	// ErrUnauthorized is returned when a non-superadmin tries to change the admin set.
	ErrUnauthorized = errors.New("only superadmins can manage admins")
	// ErrStoreUnavailable wraps every failure of the underlying key-path store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrWrongType is returned when a contest operation targets a survey or vice versa.
	ErrWrongType = errors.New("operation not supported for this survey type")
	// ErrInvalidTransition is returned for contest lifecycle moves the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid contest state transition")
	// ErrNoQuestions is returned when starting a contest without questions.
	ErrNoQuestions = errors.New("contest has no questions")
	// ErrQuestionNotActive rejects contest responses for anything but the current question.
	ErrQuestionNotActive = errors.New("question is not active")
	// ErrAlreadyResponded rejects a second contest response for the same question.
	ErrAlreadyResponded = errors.New("response already submitted")
	// ErrInvalidUser indicates neither an email nor an anonymous id was supplied.
	ErrInvalidUser = errors.New("user identity required")
	// ErrInvalidRole indicates an admin role other than admin or superadmin.
	ErrInvalidRole = errors.New("invalid admin role")
	// ErrInvalidQuestion indicates question text or options are missing.
	ErrInvalidQuestion = errors.New("question needs text and at least two options")
	// ErrInvalidPath indicates a malformed key path or path segment.
	ErrInvalidPath = errors.New("invalid key path")
)
