package ws

import (
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// allowedOrigins returns the WebSocket origin allow-list from environment or
// development defaults
func allowedOrigins() map[string]bool {
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	if configured := os.Getenv("CORS_ALLOWED_ORIGINS"); configured != "" {
		for _, origin := range strings.Split(configured, ",") {
			origins[strings.TrimSpace(origin)] = true
		}
	}

	return origins
}

// checkOrigin rejects empty origins and anything outside the allow-list
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	return allowedOrigins()[origin]
}
