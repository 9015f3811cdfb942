package protocol

// ErrorCode classifies a request failure for the client.
type ErrorCode string

const (
	CodeAuthentication ErrorCode = "AUTHENTICATION"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeState          ErrorCode = "STATE"
	CodeUnreachable    ErrorCode = "UNREACHABLE_PEER"
)

// ErrorPayload is the payload of a VerbError envelope. It is delivered only
// to the caller that issued the failing request, never broadcast.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e ErrorPayload) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}
