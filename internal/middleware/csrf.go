package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	// CSRFHeaderName is the header the token is echoed in on safe requests.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the body field accepted when no header carries the token.
	CSRFFormField = "csrf_token"

	csrfLoggerModule = "csrf"
	maxCSRFBodyBytes = 1 << 20
)

// csrfHeaderNames are checked in order. Frameworks disagree on the spelling.
var csrfHeaderNames = []string{CSRFHeaderName, "X-CSRFToken", "X-XSRF-TOKEN"}

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRF implements the double-submit-cookie pattern. Safe methods receive a token cookie when
// none is present; mutating requests must echo the cookie value in a header or the csrf_token
// body field. When enabled is false only the cookie is maintained.
func CSRF(guard *iauth.CSRFGuard, policy *iauth.CookiePolicy, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		cookieToken, _ := c.Cookie(iauth.CSRFCookieName)

		if !isUnsafeMethod(method) {
			if method != http.MethodOptions {
				token, err := ensureCSRFCookie(c, guard, policy, cookieToken)
				if err != nil {
					response.Abort(c, apperrors.ErrInternalServer.WithInternal(err))
					return
				}
				c.Header(CSRFHeaderName, token)
			}
			c.Next()
			return
		}

		if !enabled {
			c.Next()
			return
		}

		submitted := submittedCSRFToken(c)
		if !guard.Validate(submitted, cookieToken) {
			metrics.CSRFFailures.Inc()
			logger.WithModule(csrfLoggerModule).Warn("csrf validation failed",
				zap.String("method", method),
				zap.String("path", c.FullPath()),
				zap.Bool("cookie_present", cookieToken != ""),
				zap.Bool("token_present", submitted != ""),
			)
			response.Abort(c, apperrors.ErrCSRFInvalid)
			return
		}

		c.Next()
	}
}

func ensureCSRFCookie(c *gin.Context, guard *iauth.CSRFGuard, policy *iauth.CookiePolicy, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}
	token, err := guard.Issue()
	if err != nil {
		return "", err
	}
	policy.Write(c, iauth.CookieCSRF, token)
	return token, nil
}

func submittedCSRFToken(c *gin.Context) string {
	for _, name := range csrfHeaderNames {
		if token := strings.TrimSpace(c.GetHeader(name)); token != "" {
			return token
		}
	}
	return csrfTokenFromBody(c)
}

// csrfTokenFromBody reads the csrf_token field from a form or JSON body and restores the body
// for the downstream handler.
func csrfTokenFromBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}

	contentType := c.ContentType()
	if contentType != binding.MIMEJSON && contentType != binding.MIMEPOSTForm {
		return ""
	}

	original := c.Request.Body
	body, err := io.ReadAll(io.LimitReader(original, maxCSRFBodyBytes))
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), original), original}
	if err != nil || len(body) == 0 {
		return ""
	}

	if contentType == binding.MIMEPOSTForm {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(values.Get(CSRFFormField))
	}

	var payload struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := binding.JSON.BindBody(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.CSRFToken)
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}
