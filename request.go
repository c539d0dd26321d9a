package switchboard

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RouteRequest encapsulates everything a route handler needs: the parsed HTTP
// request with its captured path parameters, the shared database pool, the
// application context, and the typed per-request state.
type RouteRequest[RouteState RouteStateCompatible] struct {
	Request  *HttpRequest
	Database *pgxpool.Pool
	Context  context.Context
	State    *RouteState
}

// HttpRequest represents a parsed HTTP request with convenient access methods.
// Provides structured access to headers, body content, query parameters, path
// parameters, and path segments.
//
// Params is populated by the dispatcher after a successful route match and
// contains exactly the captures the winning pattern produced for this path:
// named segments for static patterns, positional indices ("0", "1", ...) for
// regex patterns. Before a match, Params is nil.
type HttpRequest struct {
	Path        string
	QueryString string
	Method      HttpMethod
	Body        []byte
	Headers     map[string]string
	Params      map[string]string
	IpAddress   string
	Id          uuid.UUID
	_tempMap    *map[string]string
}

// Param returns the captured path parameter for key, or an empty string if the
// winning pattern produced no such capture.
func (req *HttpRequest) Param(key string) string {
	return req.Params[key]
}

// ParamInt64 extracts a captured path parameter as a 64-bit signed integer.
// Returns nil if the parameter is missing or not numeric.
func (req *HttpRequest) ParamInt64(key string) *int64 {
	val, ok := req.Params[key]
	if !ok {
		return nil
	}
	num, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil
	}
	return &num
}

// ParamUUID extracts and validates a captured path parameter as a UUID.
// Returns nil if the parameter is missing or not a valid UUID.
func (req *HttpRequest) ParamUUID(key string) *uuid.UUID {
	val, ok := req.Params[key]
	if !ok {
		return nil
	}
	g, err := uuid.Parse(val)
	if err != nil {
		return nil
	}
	return &g
}

// QueryMap parses the query string into a map of key-value pairs with URL decoding.
func (req *HttpRequest) QueryMap() map[string]string {
	res := make(map[string]string)
	keyStart := 0
	keyEnd := 0
	valueStart := 0
	valueEnd := 0
	for keyEnd < len(req.QueryString) {
		if req.QueryString[keyEnd] == '=' {
			valueStart = keyEnd + 1
			valueEnd = valueStart
			for valueEnd < len(req.QueryString) && req.QueryString[valueEnd] != '&' {
				valueEnd++
			}
			key, _ := url.QueryUnescape(req.QueryString[keyStart:keyEnd])
			value, _ := url.QueryUnescape(req.QueryString[valueStart:valueEnd])
			res[key] = value
			keyStart = valueEnd + 1
			keyEnd = keyStart
		}
		keyEnd++
	}
	return res
}

// QueryGetInt32 extracts a query parameter as a 32-bit signed integer.
// Returns nil if the parameter is missing or cannot be parsed as int32.
func (req *HttpRequest) QueryGetInt32(key string) *int32 {
	if req._tempMap == nil {
		m := req.QueryMap()
		req._tempMap = &m
	}
	val, ok := (*req._tempMap)[key]
	if ok {
		num, err := strconv.Atoi(val)
		if err == nil {
			v := int32(num)
			return &v
		}
	}
	return nil
}

// QueryGetInt64 extracts a query parameter as a 64-bit signed integer.
// Returns nil if the parameter is missing or cannot be parsed as int64.
func (req *HttpRequest) QueryGetInt64(key string) *int64 {
	if req._tempMap == nil {
		m := req.QueryMap()
		req._tempMap = &m
	}
	val, ok := (*req._tempMap)[key]
	if ok {
		num, err := strconv.Atoi(val)
		if err == nil {
			v := int64(num)
			return &v
		}
	}
	return nil
}

// QueryGetString extracts a query parameter as a URL-decoded string.
// Returns nil if the parameter is missing, but returns a pointer to an empty
// string for present-but-empty parameters.
func (req *HttpRequest) QueryGetString(key string) *string {
	if req._tempMap == nil {
		m := req.QueryMap()
		req._tempMap = &m
	}
	val, ok := (*req._tempMap)[key]
	if ok {
		return &val
	}
	return nil
}

// QueryGetUUID extracts and validates a query parameter as a UUID.
// Returns nil if the parameter is missing or not a valid UUID format.
func (req *HttpRequest) QueryGetUUID(key string) *uuid.UUID {
	if req._tempMap == nil {
		m := req.QueryMap()
		req._tempMap = &m
	}
	val, ok := (*req._tempMap)[key]
	if !ok {
		return nil
	}
	g, err := uuid.Parse(val)
	if err != nil {
		return nil
	}
	return &g
}

// CanonicalHeaderKey normalizes a header name to its conventional form,
// uppercasing the first letter of each dash-separated token so that lookups
// against HttpRequest.Headers are stable regardless of the wire casing
// ("content-length" → "Content-Length").
func CanonicalHeaderKey(key string) string {
	caser := cases.Title(language.English)
	parts := strings.Split(strings.ToLower(key), "-")
	for i := range parts {
		parts[i] = caser.String(parts[i])
	}
	return strings.Join(parts, "-")
}

// ParseRequest reads and parses an HTTP request from a TCP connection.
// Implements a complete HTTP/1.1 request-line, header, and body parser with a
// read deadline. Header names are canonicalized with CanonicalHeaderKey.
// Returns nil for malformed requests or connection errors; the request body
// itself is carried as opaque bytes and never interpreted.
func ParseRequest(incoming *net.Conn) *HttpRequest {
	(*incoming).SetReadDeadline(time.Now().Add(time.Second * 10))
	req := HttpRequest{
		Path:        "",
		Method:      "",
		Body:        nil,
		Headers:     make(map[string]string),
		QueryString: "",
		IpAddress:   (*incoming).RemoteAddr().String(),
		Id:          uuid.New(),
	}

	bufReader := bufio.NewReader(*incoming)
	bytes, err := bufReader.ReadBytes(' ')
	if err != nil {
		return nil
	}
	method, known := HttpMethods[string(bytes[:len(bytes)-1])]
	if !known {
		method = None
	}
	req.Method = method
	bytes, err = bufReader.ReadBytes(' ')
	if err != nil {
		return nil
	}
	req.Path = string(bytes[:len(bytes)-1])
	_, err = bufReader.ReadBytes('\n')
	if err != nil {
		return nil
	}
	qryIdx := strings.Index(req.Path, "?")
	if qryIdx > -1 {
		req.QueryString = req.Path[qryIdx+1:]
		req.Path = req.Path[0:qryIdx]
	}
	for {
		bytes, err = bufReader.ReadBytes('\n')
		if err != nil {
			return nil
		}
		if bytes[0] == '\r' {
			break
		}
		if bytes[0] == '\n' {
			continue
		}
		header := strings.TrimRight(string(bytes), "\r\n")
		split := strings.SplitN(header, ":", 2)
		if len(split) != 2 {
			continue
		}
		req.Headers[CanonicalHeaderKey(split[0])] = strings.TrimSpace(split[1])
	}

	// Read body
	if req.Headers["Content-Length"] != "" {
		bodyLength, _ := strconv.Atoi(req.Headers["Content-Length"])
		body := make([]byte, bodyLength)
		_, err = io.ReadFull(bufReader, body)
		if err != nil {
			return nil
		}
		req.Body = body
	}

	return &req
}
