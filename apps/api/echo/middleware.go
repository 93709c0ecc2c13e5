package echoapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/text/language"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/ratelimit"
	"github.com/schooldriver/schooldriver/core/user"
)

const (
	contextLangKey = "lang"
	langParam      = "lang"

	contentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' cdn.jsdelivr.net cdnjs.cloudflare.com; " +
		"style-src 'self' 'unsafe-inline' cdn.jsdelivr.net; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' cdn.jsdelivr.net; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none';"
	permissionsPolicy = "geolocation=(), microphone=(), camera=()"
)

var (
	suspiciousAgents = []string{"sqlmap", "nikto", "nmap", "dirb", "burp", "owasp"}
	suspiciousParams = []string{"../", "<script", "union select", "drop table", "exec("}

	rateLimitMessages = map[string]string{
		ratelimit.CategoryLogin:   "Too many login attempts. Please try again later.",
		ratelimit.CategoryAPI:     "API rate limit exceeded. Please slow down.",
		ratelimit.CategoryGeneral: "Rate limit exceeded. Please slow down.",
	}
)

// roleMiddleware lets through principals whose primary role belongs to one of the roles' families.
// No roles means any authenticated principal.
func roleMiddleware(conf *core.Config, roles ...string) echo.MiddlewareFunc {
	return guardMiddleware(conf, true, roles...)
}

// guardMiddleware redirects to the login page when raise is false, instead of answering 403.
func guardMiddleware(conf *core.Config, raise bool, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			d := user.Authorize(getContextPrincipal(ctx), user.GuardOptions{
				LoginURL:       conf.Server.LoginURL,
				Next:           ctx.Request().URL.RequestURI(),
				RaiseException: raise,
			}, roles...)

			switch d.Outcome {
			case user.Allow:
				return next(ctx)
			case user.Redirect:
				return ctx.Redirect(http.StatusFound, d.RedirectTo)
			default:
				return echo.NewHTTPError(http.StatusForbidden, d.Reason)
			}
		}
	}
}

func securityHeadersMiddleware(debug bool) echo.MiddlewareFunc {
	cfg := middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if !debug {
		cfg.ContentSecurityPolicy = contentSecurityPolicy
	}
	secure := middleware.SecureWithConfig(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := secure(next)
		return func(ctx echo.Context) error {
			header := ctx.Response().Header()
			header.Set("Permissions-Policy", permissionsPolicy)
			ctx.Response().Before(func() {
				header.Del(echo.HeaderServer)
			})
			return h(ctx)
		}
	}
}

// auditMiddleware logs security relevant requests: admin access, login attempts and failures, scanners.
func auditMiddleware(logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			path := req.URL.Path
			ip := ctx.RealIP()
			fields := map[string]interface{}{"ip": ip, "path": path}

			if strings.HasPrefix(path, "/admin/") {
				logger.Info("admin access attempt", fields)
			}
			isLogin := req.Method == http.MethodPost && ratelimit.Classify(path) == ratelimit.CategoryLogin
			if isLogin {
				logger.Info("login attempt", fields)
			}

			agent := strings.ToLower(req.UserAgent())
			for _, pattern := range suspiciousAgents {
				if strings.Contains(agent, pattern) {
					logger.Warn(fmt.Sprintf("suspicious user agent detected: %s", agent), fields)
					break
				}
			}
			query := strings.ToLower(req.URL.RawQuery)
			if unescaped, err := url.QueryUnescape(query); err == nil {
				query = unescaped
			}
			for _, param := range suspiciousParams {
				if strings.Contains(query, param) {
					logger.Warn(fmt.Sprintf("suspicious query parameters: %s", query), fields)
					break
				}
			}

			err := next(ctx)
			if isLogin {
				status := ctx.Response().Status
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
				if err != nil || status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
					logger.Warn("failed login attempt", fields)
				}
			}
			return err
		}
	}
}

// rateLimitMiddleware answers 403 once the client went over the limit of the request category.
func rateLimitMiddleware(limiter *ratelimit.Limiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			category := ratelimit.Classify(ctx.Request().URL.Path)
			ip := ctx.RealIP()
			if !limiter.Allow(ctx.Request().Context(), category, ip) {
				logger.Warn(fmt.Sprintf("%s rate limit exceeded", category), map[string]interface{}{"ip": ip})
				return echo.NewHTTPError(http.StatusForbidden, rateLimitMessages[category])
			}
			return next(ctx)
		}
	}
}

// languageMiddleware picks the response language from the `lang` query param, then Accept-Language.
func languageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		lang := parseLang(ctx.QueryParam(langParam))
		if lang == "" {
			lang = parseAcceptLanguage(ctx.Request().Header.Get("Accept-Language"))
		}
		if lang == "" {
			lang = core.DefaultLang
		}
		ctx.Set(contextLangKey, lang)
		ctx.Response().Header().Set("Content-Language", lang)
		return next(ctx)
	}
}

func contextLang(ctx echo.Context) string {
	if lang, ok := ctx.Get(contextLangKey).(string); ok {
		return lang
	}
	return core.DefaultLang
}

var langMatcher = newLangMatcher()

func newLangMatcher() language.Matcher {
	tags := make([]language.Tag, 0, len(core.Languages))
	for _, lang := range core.Languages {
		tags = append(tags, language.Make(lang))
	}
	return language.NewMatcher(tags)
}

// matchLang returns the supported language closest to the desired tags, or "".
func matchLang(desired ...language.Tag) string {
	if len(desired) == 0 {
		return ""
	}
	_, idx, conf := langMatcher.Match(desired...)
	if conf == language.No {
		return ""
	}
	return core.Languages[idx]
}

func parseLang(s string) string {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return matchLang(tag)
}

// parseAcceptLanguage honours q-values; tags weighted 0 are never picked.
func parseAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}
	return matchLang(tags...)
}
