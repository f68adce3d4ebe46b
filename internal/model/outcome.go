package model

type Status int

const (
	StatusOK   Status = 0
	StatusFail Status = 1
)

const (
	MsgSuccess          = "success"
	MsgNoPermission     = "No permission"
	MsgParamError       = "param error"
	MsgActionUndefined  = "action not define"
	MsgNoBoundary       = "Content-Type header doesn't contain boundary"
	MsgNotBoundaryStart = "Content NOT begin with boundary"
	MsgNoFileName       = "Can't find out file name..."
	MsgDestExists       = "destination already exists"
)

// OutcomeCode classifies a failure for clients that should not rely on the
// message text. Failures carrying a code are terminal.
type OutcomeCode string

const (
	CodePermissionDenied  OutcomeCode = "permission_denied"
	CodeBadRequest        OutcomeCode = "bad_request"
	CodeUnsupportedAction OutcomeCode = "unsupported_action"
)

// SyncOutcome is the JSON body of every relay response.
type SyncOutcome struct {
	Msg    string      `json:"msg"`
	Status Status      `json:"status"`
	Code   OutcomeCode `json:"code,omitempty"`
}

func OK() SyncOutcome {
	return SyncOutcome{Msg: MsgSuccess, Status: StatusOK}
}

func Fail(msg string) SyncOutcome {
	return SyncOutcome{Msg: msg, Status: StatusFail}
}

func Terminal(code OutcomeCode, msg string) SyncOutcome {
	return SyncOutcome{Msg: msg, Status: StatusFail, Code: code}
}

func NoPermission() SyncOutcome {
	return Terminal(CodePermissionDenied, MsgNoPermission)
}

func (o SyncOutcome) OK() bool {
	return o.Status == StatusOK
}

// IsTerminal reports a failure that retrying cannot fix. The message check
// keeps compatibility with receivers that do not send a code.
func (o SyncOutcome) IsTerminal() bool {
	if o.Status == StatusOK {
		return false
	}

	return o.Code != "" || o.Msg == MsgNoPermission
}
