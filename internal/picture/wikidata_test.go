package picture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWikidataFinder(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "picture found",
			status: http.StatusOK,
			body:   `{"results":{"bindings":[{"pic":{"type":"uri","value":"http://commons.wikimedia.org/wiki/Special:FilePath/A.jpg"}}]}}`,
			want:   "http://commons.wikimedia.org/wiki/Special:FilePath/A.jpg",
		},
		{
			name:   "no bindings",
			status: http.StatusOK,
			body:   `{"results":{"bindings":[]}}`,
		},
		{
			name:   "unexpected shape",
			status: http.StatusOK,
			body:   `{"results":{"bindings":[{"pic":{"value":7}}]}}`,
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>rate limited</html>`,
		},
		{
			name:   "server error",
			status: http.StatusTooManyRequests,
			body:   `{}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery, gotAgent string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query().Get("query")
				gotAgent = r.Header.Get("User-Agent")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got := NewWikidataFinder(srv.URL).Find(context.Background(), "民主進步黨", "賴清德")
			if tt.want == "" {
				if got != nil {
					t.Errorf("Find() = %q, want nil", *got)
				}
			} else if got == nil || *got != tt.want {
				t.Errorf("Find() = %v, want %q", got, tt.want)
			}
			if !strings.Contains(gotQuery, `"賴清德"@zh-hant`) || !strings.Contains(gotQuery, `"民主進步黨"@zh-hant`) {
				t.Errorf("query does not reference the candidate: %s", gotQuery)
			}
			if gotAgent == "" {
				t.Error("expected a User-Agent header")
			}
		})
	}
}

func TestWikidataFinderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	if got := NewWikidataFinder(endpoint).Find(context.Background(), "p", "n"); got != nil {
		t.Errorf("Find() on a closed server = %q, want nil", *got)
	}
}

func TestEscapeLiteral(t *testing.T) {
	got := buildQuery(`a"b`, `c\d`)
	if !strings.Contains(got, `"a\"b"@zh-hant`) || !strings.Contains(got, `"c\\d"@zh-hant`) {
		t.Errorf("literals not escaped: %s", got)
	}
}
