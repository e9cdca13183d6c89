// ABOUTME: Method+path route matching with :param segment extraction
// ABOUTME: Pure function over the route table, no shared mutable state

package server

import (
	"net/http"
	"net/url"
	"strings"
)

// HandlerFunc is an endpoint handler receiving bound path parameters.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// Route pairs an HTTP method and a path pattern with a handler.
// Pattern segments beginning with ':' match any single non-empty
// segment and bind it by name, percent-decoded. All other segments
// must match literally.
type Route struct {
	Method  string
	Pattern string
	Handler HandlerFunc
}

// match returns the first route whose method and pattern match the
// given request, along with the bound parameters. Returns nil when no
// route matches.
func match(routes []Route, method, path string) (*Route, map[string]string) {
	segments := strings.Split(path, "/")

	for i := range routes {
		route := &routes[i]
		if route.Method != method {
			continue
		}
		params, ok := matchPattern(route.Pattern, segments)
		if !ok {
			continue
		}
		return route, params
	}
	return nil, nil
}

// matchPattern matches pre-split path segments against one pattern.
// Segment counts must be equal; there are no wildcards.
func matchPattern(pattern string, segments []string) (map[string]string, bool) {
	patternSegs := strings.Split(pattern, "/")
	if len(patternSegs) != len(segments) {
		return nil, false
	}

	var params map[string]string
	for i, ps := range patternSegs {
		if strings.HasPrefix(ps, ":") {
			if segments[i] == "" {
				return nil, false
			}
			decoded, err := url.PathUnescape(segments[i])
			if err != nil {
				decoded = segments[i]
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[ps[1:]] = decoded
			continue
		}
		if ps != segments[i] {
			return nil, false
		}
	}
	return params, true
}
