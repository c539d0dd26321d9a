package switchboard

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// genericResponse represents the standard JSON response format used by framework
// response helpers: a boolean status indicator plus a human-readable message.
//
// JSON Output Example:
//
//	{"status": true, "message": "Operation completed successfully"}
type genericResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// HttpResponse represents a complete HTTP response with headers, body, and
// status code. Three delivery modes are supported:
//   - Body responses: the common case, Body bytes written after the headers
//   - Streaming responses: Writer set via BufferedResponse, streamed to the
//     connection without buffering the whole payload
//   - Suspended responses: Deferred set via DeferredResponse, which tells the
//     dispatcher to park the connection and let the async exchange finish it
//
// HeadOnly marks a response produced for a HEAD route: status and headers are
// emitted, including the Content-Length the body would have had, but the body
// itself is suppressed.
type HttpResponse struct {
	StatusCode StatusCode
	Headers    map[string]string
	Body       []byte
	Writer     *bufio.Reader
	WriterSize int64
	HeadOnly   bool
	Deferred   Deferred
	Timeout    time.Duration
}

// NewHttpResponse creates a new HttpResponse with a 200 OK status and empty
// headers and body.
func NewHttpResponse() *HttpResponse {
	return &HttpResponse{
		StatusCode: StatusOK,
		Headers:    make(map[string]string),
		Body:       []byte{},
	}
}

// StringResponse creates a plain text HTTP response.
// Returns a 200 OK response with "text/plain" content type.
func StringResponse(body string) *HttpResponse {
	res := NewHttpResponse()
	res.StatusCode = StatusOK
	res.Headers["Content-Type"] = "text/plain"
	res.Body = []byte(body)
	return res
}

// JsonResponse creates a JSON HTTP response from any serializable Go data.
// Returns a 200 OK response with "application/json" content type.
func JsonResponse(body any) *HttpResponse {
	res := NewHttpResponse()
	res.StatusCode = StatusOK
	res.Headers["Content-Type"] = "application/json"
	res.Body, _ = json.Marshal(body)
	return res
}

// ErrorResponse creates a 500 Internal Server Error response from an error.
// Logs the actual error for debugging but sends a generic message to prevent
// information leakage.
func ErrorResponse(body error) *HttpResponse {
	zap.L().Error("handler error", zap.Error(body))
	errorResponse := genericResponse{
		Status:  false,
		Message: "An error occurred and your request could not be completed.",
	}
	payload, _ := json.Marshal(errorResponse)
	res := NewHttpResponse()
	res.StatusCode = StatusInternalServerError
	res.Headers["Content-Type"] = "application/json"
	res.Body = payload
	return res
}

// ErrorMessageResponse creates a 500 Internal Server Error response with a
// custom message. Unlike ErrorResponse, this sends the provided message
// directly to the client. Use with caution to avoid information leakage.
func ErrorMessageResponse(body string) *HttpResponse {
	errorResponse := genericResponse{
		Status:  false,
		Message: body,
	}
	payload, _ := json.Marshal(errorResponse)
	res := NewHttpResponse()
	res.StatusCode = StatusInternalServerError
	res.Headers["Content-Type"] = "application/json"
	res.Body = payload
	return res
}

// BadRequestResponse creates a 400 Bad Request response with a custom error message.
func BadRequestResponse(message string) *HttpResponse {
	res := JsonResponse(genericResponse{
		Status:  false,
		Message: message,
	})
	res.StatusCode = StatusBadRequest
	return res
}

// ForbiddenResponse creates a 403 Forbidden response.
func ForbiddenResponse(message string) *HttpResponse {
	res := JsonResponse(genericResponse{
		Status:  false,
		Message: message,
	})
	res.StatusCode = StatusForbidden
	return res
}

// NotFoundResponse creates a 404 Not Found response.
func NotFoundResponse(err string) *HttpResponse {
	res := JsonResponse(genericResponse{
		Status:  false,
		Message: err,
	})
	res.StatusCode = StatusNotFound
	return res
}

// MethodNotAllowedResponse creates a 405 Method Not Allowed response carrying
// an Allow header listing the permitted methods. The methods are joined with
// ", " in the order given, which the route table guarantees is the first-seen
// registration order of the routes covering the path.
func MethodNotAllowedResponse(allowed []HttpMethod) *HttpResponse {
	res := StringResponse("405 method not allowed")
	res.StatusCode = StatusMethodNotAllowed
	names := make([]string, len(allowed))
	for i := range allowed {
		names[i] = string(allowed[i])
	}
	res.Headers["Allow"] = strings.Join(names, ", ")
	return res
}

// SuccessStringResponse creates a standardized JSON success response with a message.
func SuccessStringResponse(message string) *HttpResponse {
	return JsonResponse(genericResponse{
		Status:  true,
		Message: message,
	})
}

// BufferedResponse creates a streaming HTTP response for large content.
// Uses a buffered reader to stream content without loading it all into memory.
func BufferedResponse(writer *bufio.Reader, length int64) *HttpResponse {
	res := NewHttpResponse()
	res.Writer = writer
	res.WriterSize = length
	res.StatusCode = StatusOK
	return res
}

// DeferredResponse creates a suspended response: instead of answering now, the
// dispatcher parks the connection and arms an async exchange that races d's
// completion against the timeout. Whichever trigger fires first renders the
// final response exactly once; see async.go for the exchange semantics.
//
// A timeout of zero falls back to the application's DefaultAsyncTimeout.
func DeferredResponse(d Deferred, timeout time.Duration) *HttpResponse {
	res := NewHttpResponse()
	res.Deferred = d
	res.Timeout = timeout
	return res
}

// SetHeader adds or updates an HTTP response header.
func (self *HttpResponse) SetHeader(key string, value string) {
	self.Headers[key] = value
}

// SetStatus updates the HTTP status code for this response.
func (self *HttpResponse) SetStatus(status StatusCode) {
	self.StatusCode = status
}

// ApplyCors adds CORS headers to the response.
// Used internally by the framework to handle cross-origin requests.
func (self *HttpResponse) ApplyCors(origin *string, headers *string, methods *string) {
	self.SetHeader("Access-Control-Allow-Origin", *origin)
	self.SetHeader("Access-Control-Allow-Headers", *headers)
	self.SetHeader("Access-Control-Allow-Methods", *methods)
}

// Write sends the HTTP response to the client: status line, headers,
// Content-Length, then the body (unless HeadOnly is set, in which case the
// body bytes are suppressed while Content-Length still reflects them).
//
// The first write failure aborts the response; by then the status line may
// already be on the wire, so callers treat any error from Write as
// unswallowable only if nothing was written at all.
func (self *HttpResponse) Write(stream io.Writer) error {
	var output strings.Builder
	output.WriteString("HTTP/1.1 ")
	output.WriteString(strconv.Itoa(int(self.StatusCode)))
	output.WriteString(" ")
	output.WriteString(StatusCodeDescriptions[self.StatusCode])
	output.WriteString("\r\n")
	for key, value := range self.Headers {
		output.WriteString(key)
		output.WriteString(": ")
		output.WriteString(value)
		output.WriteString("\r\n")
	}
	output.WriteString("Content-Length: ")
	if self.Writer != nil {
		output.WriteString(strconv.Itoa(int(self.WriterSize)))
	} else {
		output.WriteString(strconv.Itoa(len(self.Body)))
	}
	output.WriteString("\r\n\r\n")

	value := output.String()
	write := 0
	for write < len(value) {
		n, err := stream.Write([]byte(value[write:]))
		if err != nil {
			return err
		}
		write += n
	}
	if self.HeadOnly {
		return nil
	}
	if self.Writer != nil {
		_, err := self.Writer.WriteTo(stream)
		return err
	}
	write = 0
	for write < len(self.Body) {
		n, err := stream.Write(self.Body[write:])
		if err != nil {
			return err
		}
		write += n
	}
	return nil
}
