package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schooldriver/schooldriver/core"
)

func Test_securityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		debug   bool
		wantCSP bool
	}{
		{name: "production", wantCSP: true},
		{name: "debug", debug: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setup(t, func(conf *core.Config) { conf.Debug = tt.debug })

			rec := app.do(http.MethodGet, "/", "")
			h := rec.Header()
			assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
			assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
			assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
			assert.Equal(t, "geolocation=(), microphone=(), camera=()", h.Get("Permissions-Policy"))
			assert.Empty(t, h.Get("Server"))
			if tt.wantCSP {
				assert.Contains(t, h.Get("Content-Security-Policy"), "frame-ancestors 'none'")
			} else {
				assert.Empty(t, h.Get("Content-Security-Policy"))
			}
		})
	}
}

func Test_contentLanguage(t *testing.T) {
	app := setup(t)

	tests := []struct {
		name           string
		path           string
		acceptLanguage string
		want           string
	}{
		{name: "default", path: "/", want: "en"},
		{name: "query param", path: "/?lang=ES", want: "es"},
		{name: "header", path: "/", acceptLanguage: "fr-FR,es-MX;q=0.8", want: "es"},
		{name: "query param wins", path: "/?lang=en", acceptLanguage: "es", want: "en"},
		{name: "unsupported", path: "/?lang=fr", acceptLanguage: "de", want: "en"},
		{name: "header weights", path: "/", acceptLanguage: "en;q=0.1, es;q=0.9", want: "es"},
		{name: "header zero weight", path: "/", acceptLanguage: "en;q=0, es", want: "es"},
		{name: "header all refused", path: "/", acceptLanguage: "es;q=0, fr", want: "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			if tt.acceptLanguage != "" {
				req.Header.Set("Accept-Language", tt.acceptLanguage)
			}
			app.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Header().Get("Content-Language"))
		})
	}
}

func Test_rateLimit(t *testing.T) {
	t.Run("login", func(t *testing.T) {
		app := setup(t)
		for i := 0; i < 5; i++ {
			rec := app.do(http.MethodPost, "/v1/users/login", "", []byte(`{}`))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
		app.run(t, []httpTest{
			{
				name: "blocked", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "Too many login attempts. Please try again later."}),
			},
			// other categories keep their own budget
			{name: "api", path: "/v1/grade-scale"},
		})
	})

	t.Run("api", func(t *testing.T) {
		app := setup(t, func(conf *core.Config) { conf.RateLimit.API.Limit = 2 })
		app.run(t, []httpTest{
			{name: "first", path: "/v1/grade-scale"},
			{name: "second", path: "/v1/grade-scale"},
			{
				name: "blocked", path: "/v1/grade-scale",
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "API rate limit exceeded. Please slow down."}),
			},
			{name: "general", path: "/"},
		})
	})

	t.Run("disabled in debug", func(t *testing.T) {
		app := setup(t, func(conf *core.Config) {
			conf.Debug = true
			conf.RateLimit.API.Limit = 1
		})
		for i := 0; i < 3; i++ {
			rec := app.do(http.MethodGet, "/v1/grade-scale", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}
