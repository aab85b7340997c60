// Package metadata extracts the caller's address and User-Agent and classifies
// the client, so spreadsheet callers can be told apart from browsers and scripts.
package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"growthsheet/pkg/requestcontext"
)

// MaxXFFHeaderLength bounds X-Forwarded-For before it is parsed.
const MaxXFFHeaderLength = 500

// appsScriptToken appears in the User-Agent of UrlFetchApp and IMPORTDATA calls.
const appsScriptToken = "Google-Apps-Script"

var commandLineAgents = []string{"curl/", "Wget/", "growthcalc/", "Go-http-client/", "python-requests/"}

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies is a list of IP prefixes (CIDR notation) that are trusted
	// to set X-Forwarded-For headers. If empty, XFF is never trusted.
	TrustedProxies []netip.Prefix
}

// DefaultConfig returns a Config with no trusted proxies.
func DefaultConfig() *Config {
	return &Config{
		TrustedProxies: nil,
	}
}

// Middleware handles client metadata extraction with configurable trusted proxies.
type Middleware struct {
	config *Config
}

// NewMiddleware creates a new metadata middleware with the given config.
func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Middleware{config: cfg}
}

// Handler stores client IP, User-Agent and client kind in the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.extractClientIP(r)
		userAgent := r.Header.Get("User-Agent")

		ctx := r.Context()
		ctx = requestcontext.WithClientMetadata(ctx, ip, userAgent)
		ctx = requestcontext.WithClientKind(ctx, Classify(userAgent))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Classify maps a User-Agent string to a client kind.
func Classify(userAgent string) requestcontext.ClientKind {
	if userAgent == "" {
		return requestcontext.ClientUnknown
	}
	if strings.Contains(userAgent, appsScriptToken) {
		return requestcontext.ClientAppsScript
	}
	for _, prefix := range commandLineAgents {
		if strings.HasPrefix(userAgent, prefix) {
			return requestcontext.ClientCommandLine
		}
	}

	ua := useragent.New(userAgent)
	if ua.Bot() {
		return requestcontext.ClientBot
	}
	if name, _ := ua.Browser(); name != "" && ua.OS() != "" {
		return requestcontext.ClientBrowser
	}
	return requestcontext.ClientUnknown
}

func (m *Middleware) extractClientIP(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := r.Header.Get("X-Real-IP"); xri != "" && m.isTrustedProxy(remoteIP) {
			if len(xri) <= MaxXFFHeaderLength {
				return strings.TrimSpace(xri)
			}
		}
		return remoteIP
	}

	if !m.isTrustedProxy(remoteIP) || len(xff) > MaxXFFHeaderLength {
		return remoteIP
	}

	// First entry in the chain is the original client.
	clientIP, _, _ := strings.Cut(xff, ",")
	clientIP = strings.TrimSpace(clientIP)
	if _, err := netip.ParseAddr(clientIP); err != nil {
		return remoteIP
	}
	return clientIP
}

func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr strips the port from RemoteAddr.
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if strings.HasPrefix(remoteAddr, "[") {
		if idx := strings.LastIndex(remoteAddr, "]:"); idx != -1 {
			return remoteAddr[1:idx]
		}
		return strings.Trim(strings.Split(remoteAddr, "]:")[0], "[]")
	}
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}
