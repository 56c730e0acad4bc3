// api/middleware/cors.go
package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// PixelPath is hit from shop storefronts on any origin.
const PixelPath = "/track"

// CORSMiddleware allows the dashboard origin on read endpoints and any
// origin on the pixel ingest path.
func CORSMiddleware(frontendOrigin string) gin.HandlerFunc {
	dashboard := cors.DefaultConfig()
	dashboard.AllowOrigins = splitOrigins(frontendOrigin)
	dashboard.AllowCredentials = true
	dashboard.AddAllowHeaders("Authorization", "Cache-Control", "X-Requested-With", "X-Store-ID")
	dashboard.AllowMethods = []string{"GET", "POST", "OPTIONS"}

	pixel := cors.DefaultConfig()
	pixel.AllowAllOrigins = true
	pixel.AddAllowHeaders("X-Store-ID")
	pixel.AllowMethods = []string{"POST", "OPTIONS"}

	dashboardCORS := cors.New(dashboard)
	pixelCORS := cors.New(pixel)

	return func(c *gin.Context) {
		if strings.HasSuffix(c.Request.URL.Path, PixelPath) {
			pixelCORS(c)
			return
		}
		dashboardCORS(c)
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:3000"}
	}
	return out
}
