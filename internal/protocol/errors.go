package protocol

const (
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotReady      = "E_NOT_READY"
	ErrNotFound      = "E_NOT_FOUND"
	ErrNothingToUndo = "E_NOTHING_TO_UNDO"
	ErrCapability    = "E_CAPABILITY"
	ErrSchema        = "E_SCHEMA"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrNotReady:      {},
	ErrNotFound:      {},
	ErrNothingToUndo: {},
	ErrCapability:    {},
	ErrSchema:        {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorBody is the JSON body of every failed API call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
