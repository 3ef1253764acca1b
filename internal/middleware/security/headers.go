package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
)

type HeadersConfig struct {
	AllowedOrigins []string
}

// HeadersMiddleware sets the security headers for the API. Downloads of policy PDFs
// may be embedded by the allowed front-end origins.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'none'; " +
		"connect-src 'self' " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"frame-ancestors 'self' " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"base-uri 'none'; " +
		"form-action 'none'"

	resourcePolicy := "same-origin"
	if len(cfg.AllowedOrigins) > 0 {
		resourcePolicy = "cross-origin"
	}

	return helmet.New(helmet.Config{
		XSSProtection:             "0",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "SAMEORIGIN",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     csp,
		CrossOriginResourcePolicy: resourcePolicy,
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginEmbedderPolicy: "unsafe-none",
	})
}

// ParseOrigins splits a comma-separated origin list. "*" yields no explicit origins.
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	return origins
}

func buildConnectSrc(origins []string) string {
	return strings.Join(origins, " ")
}
