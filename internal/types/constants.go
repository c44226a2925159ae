package types

import (
	"os"
	"strings"
)

// ContextUserKey is where AuthMiddleware stores the authenticated user on the
// gin context.
const ContextUserKey = "user"

var (
	// Origins the browser client may call from when nothing is configured:
	// the API itself and the Vite dev server.
	defaultOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}

	// AllowedOrigins feeds both the CORS config and the websocket origin
	// check.
	AllowedOrigins = initAllowedOrigins()
)

// initAllowedOrigins extends the defaults with CLIENT_URL and the
// comma-separated ALLOWED_ORIGINS list.
func initAllowedOrigins() []string {
	origins := make([]string, len(defaultOrigins))
	copy(origins, defaultOrigins)

	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		origins = append(origins, clientURL)
	}

	if extra := os.Getenv("ALLOWED_ORIGINS"); extra != "" {
		for _, origin := range strings.Split(extra, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}

	return origins
}
