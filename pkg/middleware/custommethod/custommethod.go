// Package custommethod maps resource-oriented custom method paths such as
// "/entries:bulkImport" onto plain sub-resource paths ("/entries/bulkImport")
// so they can be registered on a gin router, which treats ':' as a parameter marker.
package custommethod

import (
	"net/http"
	"strings"
)

// Handler rewrites the request path before delegating to next. Only verbs in the
// allow list are rewritten; any other colon in the final segment is left alone.
func Handler(next http.Handler, verbs ...string) http.Handler {
	known := make(map[string]struct{}, len(verbs))
	for _, v := range verbs {
		known[v] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rewritten, ok := Rewrite(r.URL.Path, known); ok {
			r.URL.Path = rewritten
			r.URL.RawPath = ""
		}
		next.ServeHTTP(w, r)
	})
}

// Rewrite returns the rewritten path and true when the last segment ends in ":<verb>".
func Rewrite(path string, verbs map[string]struct{}) (string, bool) {
	slash := strings.LastIndexByte(path, '/')
	colon := strings.LastIndexByte(path, ':')
	if colon <= slash+1 || colon == len(path)-1 {
		return path, false
	}
	verb := path[colon+1:]
	if _, ok := verbs[verb]; !ok {
		return path, false
	}
	return path[:colon] + "/" + verb, true
}
