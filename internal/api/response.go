package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/response"

	"github.com/gorilla/mux"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

// pathIP reads the {ip} variable. Dashes stand in for dots so addresses
// survive clients that mangle dotted path segments.
func pathIP(r *http.Request) (string, bool) {
	ip := strings.ReplaceAll(mux.Vars(r)["ip"], "-", ".")
	if net.ParseIP(ip) == nil {
		return ip, false
	}
	return ip, true
}

func (s *Server) blocked(w http.ResponseWriter, r *http.Request) {
	if s.Responder == nil {
		writeJSON(w, http.StatusOK, []model.BlockedEntry{})
		return
	}
	entries := s.Responder.Blocked()
	if entries == nil {
		entries = []model.BlockedEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) block(w http.ResponseWriter, r *http.Request) {
	ip, ok := pathIP(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ip address: "+ip)
		return
	}
	if s.Responder == nil {
		writeError(w, http.StatusServiceUnavailable, "response controller is not running")
		return
	}

	threatType := model.ThreatManual
	if v := r.URL.Query().Get("threat_type"); v != "" {
		threatType = model.ThreatType(v)
	}
	severity := model.SeverityHigh
	if v := r.URL.Query().Get("severity"); v != "" {
		sev, err := model.ParseSeverity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		severity = sev
	}

	res := s.Responder.Block(ip, threatType, severity, "Manually blocked via API")
	writeJSON(w, statusFor(res), res)
}

func (s *Server) unblock(w http.ResponseWriter, r *http.Request) {
	ip, ok := pathIP(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ip address: "+ip)
		return
	}
	if s.Responder == nil {
		writeError(w, http.StatusServiceUnavailable, "response controller is not running")
		return
	}
	res := s.Responder.Unblock(ip)
	writeJSON(w, statusFor(res), res)
}

// statusFor maps outcomes to HTTP codes. Skipped and idempotent outcomes are
// reported with 200; only a firewall failure is an error.
func statusFor(res response.Result) int {
	if res.Status == response.StatusFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.Responder == nil {
		writeJSON(w, http.StatusOK, []model.AuditEntry{})
		return
	}
	entries := s.Responder.Logs(limit)
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// queryInt parses a positive integer parameter, capped at max.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &paramError{name: name, value: v}
	}
	if n > max {
		n = max
	}
	return n, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + e.value
}
