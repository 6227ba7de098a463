package descriptor

import "fmt"

// Stable error codes returned to the GUI. Clients branch on these values.
const (
	CodeInstanceActionNotInitialized = 101
	CodeInstanceActionUnknown        = 102
	CodeInstanceActionNoHandler      = 103

	CodeDeviceActionNotInitialized = 201
	CodeDeviceActionDeviceUnknown  = 202
	CodeDeviceActionUnknown        = 203
	CodeDeviceActionNoHandler      = 204

	CodeDeviceControlNotInitialized = 301
	CodeDeviceControlDeviceUnknown  = 302
	CodeDeviceControlUnknown        = 303
	CodeDeviceControlNoHandler      = 304

	CodeDeviceGetStateNotInitialized = 401
	CodeDeviceGetStateDeviceUnknown  = 402
	CodeDeviceGetStateUnknown        = 403
	CodeDeviceGetStateNoHandler      = 404

	CodeUnknownOrigin = 501

	CodeHandlerFailed  = 601
	CodeInvalidPayload = 602
	CodeInternal       = 603
)

// ErrorDetail is the structured error shown to the GUI. It also implements error so
// handlers can return one to choose the code themselves.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewError creates an ErrorDetail.
func NewError(code int, format string, args ...interface{}) *ErrorDetail {
	return &ErrorDetail{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorResponse is the {error: {code, message}} body.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// DuplicateIDError reports two descriptors sharing an id within one scope. It is a
// programming error in the backend and aborts descriptor construction.
type DuplicateIDError struct {
	Kind string
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s ID %s is used twice, this would lead to unexpected behavior", e.Kind, e.ID)
}
