package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireOperatorKey(t *testing.T) {
	h := AccessLog(RequireOperatorKey("secret")(okHandler()))

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{name: "missing key", path: "/keys", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/keys", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header key", path: "/keys", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusNoContent},
		{name: "bearer key", path: "/keys", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusNoContent},
		{name: "open probe", path: "/healthz", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		for k, v := range tc.header {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status=%d want=%d body=%s", tc.name, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestRequireOperatorKeyDisabledWhenEmpty(t *testing.T) {
	h := RequireOperatorKey("  ")(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/keys", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d want=%d", w.Code, http.StatusNoContent)
	}
}
