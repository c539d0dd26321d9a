package switchboard

// HttpMethod represents the HTTP request method/verb used for routing and handler dispatch.
// The framework ships with all standard HTTP methods and allows additional verbs to be
// registered, so the recognized set is configurable rather than fixed.
type HttpMethod string

// String returns the string representation of an HttpMethod for logging and debugging.
func (m HttpMethod) String() string {
	return string(m)
}

// HTTP method constants representing the request verbs recognized by default.
// These constants provide type safety and prevent string-based routing errors.
//
// Supported methods:
//   - Get: Retrieve data, should be idempotent and safe
//   - Head: Identical to Get but without a response body; registered automatically
//     alongside every Get route
//   - Post: Create new resources, non-idempotent
//   - Put: Update/replace entire resources, idempotent
//   - Patch: Partial resource updates, may or may not be idempotent
//   - Delete: Remove resources, idempotent
//   - Options: CORS preflight and resource introspection, handled automatically
//   - None: Internal placeholder for unrecognized verbs, never routed
const (
	Get     HttpMethod = "GET"
	Head    HttpMethod = "HEAD"
	Post    HttpMethod = "POST"
	Put     HttpMethod = "PUT"
	Patch   HttpMethod = "PATCH"
	Delete  HttpMethod = "DELETE"
	Options HttpMethod = "OPTIONS"
	None    HttpMethod = "NONE"
)

// HttpMethods provides string-to-HttpMethod mapping for request parsing.
// This map is used internally by the request parser to convert incoming
// HTTP method strings into strongly-typed HttpMethod values.
//
// The map is populated before any serving begins and must not be mutated
// once a server is accepting connections. Applications that need
// nonstandard verbs should add them through RegisterMethod during startup.
var (
	HttpMethods = map[string]HttpMethod{
		"GET":     Get,
		"HEAD":    Head,
		"POST":    Post,
		"PUT":     Put,
		"PATCH":   Patch,
		"DELETE":  Delete,
		"OPTIONS": Options,
		"NONE":    None,
	}
)

// RegisterMethod adds a nonstandard HTTP verb to the set recognized by the
// request parser. Registration is single-threaded and must complete before
// Start is called; the method set is read-only while serving.
//
// Example:
//
//	switchboard.RegisterMethod("PURGE")
func RegisterMethod(name string) HttpMethod {
	m := HttpMethod(name)
	HttpMethods[name] = m
	return m
}
