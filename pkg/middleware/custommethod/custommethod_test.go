package custommethod

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewrite(t *testing.T) {
	verbs := map[string]struct{}{"bulkImport": {}, "suggest": {}}

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/api/v1/timetable/entries:bulkImport", "/api/v1/timetable/entries/bulkImport", true},
		{"/api/v1/timetable/conflicts/0b7f:suggest", "/api/v1/timetable/conflicts/0b7f/suggest", true},
		{"/api/v1/timetable/entries:unknown", "/api/v1/timetable/entries:unknown", false},
		{"/api/v1/timetable/entries", "/api/v1/timetable/entries", false},
		{"/api/v1/timetable/entries:", "/api/v1/timetable/entries:", false},
		{"/a:suggest/b", "/a:suggest/b", false},
	}
	for _, tc := range cases {
		got, ok := Rewrite(tc.in, verbs)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestHandlerRewritesBeforeRouting(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
	})

	req := httptest.NewRequest(http.MethodPost, "/timetable/entries:bulkImport", nil)
	Handler(next, "bulkImport").ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "/timetable/entries/bulkImport", seen)
}
