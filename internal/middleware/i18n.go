// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return func(c *gin.Context) {
		c.Set("lang", parseLanguage(c.GetHeader("Accept-Language"), defaultLang))
		c.Next()
	}
}

// parseLanguage picks the first supported tag from an Accept-Language
// header such as "es-MX,es;q=0.9,en;q=0.8".
func parseLanguage(header, defaultLang string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.Split(part, ";")[0]))
		switch {
		case tag == "es" || strings.HasPrefix(tag, "es-"):
			return "es"
		case tag == "en" || strings.HasPrefix(tag, "en-"):
			return "en"
		}
	}
	return defaultLang
}
