package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/payload"
)

type previewResponse struct {
	Mode    string            `json:"mode"`
	Payload map[string]string `json:"payload"`
}

// PreviewHandler returns, as JSON, the payload an ad call for this request
// would send. Nothing is sent and no cookie is set. mode selects ad,
// analytics or ad_analytics and defaults to ad.
func (s *Server) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	params := payload.Params{}
	switch r.URL.Query().Get("mode") {
	case "", "ad":
		params.AdRequest = true
	case "analytics":
		params.AnalyticsRequest = true
	case "ad_analytics":
		params.AdRequest = true
		params.AnalyticsRequest = true
	default:
		http.Error(w, "unknown mode", http.StatusBadRequest)
		s.record("preview", r.Method, http.StatusBadRequest)
		return
	}

	p, err := s.Client.Preview(r, params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, payload.ErrConfiguration) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		s.record("preview", r.Method, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(previewResponse{Mode: params.Mode().String(), Payload: p}); err != nil {
		s.Logger.Warn("encode preview", zap.Error(err))
		return
	}
	s.record("preview", r.Method, http.StatusOK)
}
