package api

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"Go2NetGuard/internal/logger"
)

// NewEngineProxy forwards requests to the engine's HTTP API, websocket
// upgrades included.
func NewEngineProxy(engineURL string) (http.Handler, error) {
	target, err := url.Parse(engineURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url %q: %w", engineURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid engine url %q: scheme and host are required", engineURL)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warnf("Engine request %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusBadGateway, "engine unavailable")
	}
	return proxy, nil
}
