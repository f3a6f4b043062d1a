package middleware

import (
	"github.com/gin-gonic/gin"
)

// LanguageMiddleware 解析请求语言（通知文案用），仅支持 en / hi
func LanguageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.DefaultQuery("lang", "")
		if lang == "" {
			lang = c.GetHeader("Accept-Language")
			if len(lang) >= 2 {
				lang = lang[:2]
			}
		}
		if lang != "en" && lang != "hi" {
			lang = "en" // 无效语言回退英文
		}
		c.Set("lang", lang)
		c.Next()
	}
}

// RequestLanguage 取 LanguageMiddleware 解析出的请求语言
func RequestLanguage(c *gin.Context) string {
	if v, ok := c.Get("lang"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "en"
}
