package domain

// Code is a machine-readable error code.
type Code string

const (
	// Construction errors
	CodeMissingTeam        Code = "MISSING_TEAM"
	CodeMissingDifficulty  Code = "MISSING_DIFFICULTY"
	CodeUnknownDifficulty  Code = "UNKNOWN_DIFFICULTY"
	CodeUnknownTeam        Code = "UNKNOWN_TEAM"
	CodeMissingOpponent    Code = "MISSING_OPPONENT"
	CodeInvalidMissionPlan Code = "INVALID_MISSION_PLAN"
	CodeUnknownAIStyle     Code = "UNKNOWN_AI_STYLE"
	CodeInvalidCatalog     Code = "INVALID_CATALOG"

	// Turn errors
	CodeRunFinished        Code = "RUN_FINISHED"
	CodeTurnPending        Code = "AI_TURN_PENDING"
	CodeNoPendingTurn      Code = "NO_PENDING_TURN"
	CodeNoMissionRemaining Code = "NO_MISSION_REMAINING"
	CodeStaleMission       Code = "STALE_MISSION"
	CodeUnknownOption      Code = "UNKNOWN_OPTION"
	CodeMissionsRemaining  Code = "MISSIONS_REMAINING"
)

// Error is a coded domain error. Two errors are equal under errors.Is when
// their codes match.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a coded error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a coded error carrying context for callers.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Sentinels for errors.Is.
var (
	ErrMissingTeam        = NewError(CodeMissingTeam, "learner team is required")
	ErrMissingDifficulty  = NewError(CodeMissingDifficulty, "difficulty is required")
	ErrUnknownDifficulty  = NewError(CodeUnknownDifficulty, "unknown difficulty")
	ErrUnknownTeam        = NewError(CodeUnknownTeam, "unknown team")
	ErrMissingOpponent    = NewError(CodeMissingOpponent, "missing opponent team snapshot")
	ErrInvalidMissionPlan = NewError(CodeInvalidMissionPlan, "invalid mission plan")
	ErrUnknownAIStyle     = NewError(CodeUnknownAIStyle, "unknown ai style")
	ErrInvalidCatalog     = NewError(CodeInvalidCatalog, "invalid catalog")
	ErrRunFinished        = NewError(CodeRunFinished, "run already finished")
	ErrTurnPending        = NewError(CodeTurnPending, "ai turn is pending")
	ErrNoPendingTurn      = NewError(CodeNoPendingTurn, "no learner decision is pending")
	ErrNoMissionRemaining = NewError(CodeNoMissionRemaining, "no mission remaining")
	ErrStaleMission       = NewError(CodeStaleMission, "stale mission")
	ErrUnknownOption      = NewError(CodeUnknownOption, "unknown option")
	ErrMissionsRemaining  = NewError(CodeMissionsRemaining, "missions remaining")
)

// CodeOf returns the code of a domain error, or "" for other errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
