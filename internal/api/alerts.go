package api

import (
	"net/http"
	"sort"
	"time"

	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/query"
)

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", query.DefaultAlertLimit, query.MaxAlertLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	filter := query.AlertFilter{
		Limit:      limit,
		Severity:   q.Get("severity"),
		ThreatType: q.Get("threat_type"),
		SrcIP:      q.Get("src_ip"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: "+v)
			return
		}
		filter.Since = since
	}
	if filter.Severity != "" {
		if _, err := model.ParseSeverity(filter.Severity); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	alerts, err := s.Alerts.RecentAlerts(r.Context(), filter)
	if err != nil {
		logger.Errorf("Failed to query alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}
	if alerts == nil {
		alerts = []model.Threat{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

type typeCount struct {
	Type  string `json:"type"`
	Count uint64 `json:"count"`
}

type summaryResponse struct {
	Total     uint64      `json:"total_alerts"`
	Critical  uint64      `json:"critical"`
	High      uint64      `json:"high"`
	Medium    uint64      `json:"medium"`
	Low       uint64      `json:"low"`
	Breakdown []typeCount `json:"breakdown"`
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Alerts.Summary(r.Context())
	if err != nil {
		logger.Errorf("Failed to summarize alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize alerts")
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum))
}

func newSummaryResponse(sum *query.Summary) summaryResponse {
	resp := summaryResponse{
		Total:     sum.Total,
		Critical:  sum.BySeverity[model.SeverityCritical.String()],
		High:      sum.BySeverity[model.SeverityHigh.String()],
		Medium:    sum.BySeverity[model.SeverityMedium.String()],
		Low:       sum.BySeverity[model.SeverityLow.String()],
		Breakdown: []typeCount{},
	}
	for _, tt := range sortedKeys(sum.ByType) {
		resp.Breakdown = append(resp.Breakdown, typeCount{Type: tt, Count: sum.ByType[tt]})
	}
	return resp
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
