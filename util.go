package switchboard

// PathListFromString parses a URL path into individual path segments for matching.
// This utility splits a URL path by forward slashes and returns the segments as a
// slice, which both static patterns and the request dispatcher operate on.
//
// The function handles edge cases like:
//   - Leading forward slash removal
//   - Root path ("/") handling
//   - Trailing slash normalization
//
// Examples:
//   - "/api/users/123" → ["api", "users", "123"]
//   - "/users" → ["users"]
//   - "/" → [""] (single empty segment)
//   - "" → [""] (treated like the root path)
//   - "/api/users/" → ["api", "users"]
func PathListFromString(path string) []string {
	if path == "" {
		return []string{""}
	}
	route := []string{}
	start := 1
	end := 1
	for end < len(path) {
		if path[end] == '/' {
			route = append(route, path[start:end])
			start = end + 1
		}
		end++
	}
	if start != end || start == 1 {
		route = append(route, path[start:end])
	}
	return route
}
