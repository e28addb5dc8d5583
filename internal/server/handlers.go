package server

import (
	"net/http"

	"github.com/pitwall-bot/pitwall/internal/store"
	"github.com/pitwall-bot/pitwall/internal/timing"
)

type liveTimingResponse struct {
	Year     int            `json:"year"`
	Location string         `json:"location"`
	Session  string         `json:"session"`
	Extras   []timing.Extra `json:"extras"`
	Rows     []timing.Row   `json:"rows"`
}

type head2HeadResponse struct {
	Year       int               `json:"year"`
	Location   string            `json:"location"`
	Session    string            `json:"session"`
	Summary    string            `json:"summary"`
	Comparison timing.Comparison `json:"comparison"`
}

type eventsResponse struct {
	Year   int              `json:"year"`
	Events []store.Location `json:"events"`
}

func (s *Server) handleLiveTiming(w http.ResponseWriter, requ *http.Request) {
	q := requ.URL.Query()
	year, err := intParam(q, "year")
	if err != nil {
		writeError(w, err)
		return
	}
	extras, err := timing.ParseExtras(listParam(q, "extras"))
	if err != nil {
		writeError(w, err)
		return
	}

	req := timing.LiveTimingRequest{
		Year:        year,
		Location:    q.Get("location"),
		SessionName: q.Get("session"),
		Extras:      extras,
	}
	lt, found, err := timing.BuildLiveTiming(requ.Context(), s.backend, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeNotFound(w)
		return
	}

	if req.SessionName == "" {
		req.SessionName = timing.DefaultSessionName
	}
	writeJSON(w, http.StatusOK, liveTimingResponse{
		Year:     req.Year,
		Location: req.Location,
		Session:  req.SessionName,
		Extras:   extras,
		Rows:     lt.Rows(),
	})
}

func (s *Server) handleHead2Head(w http.ResponseWriter, requ *http.Request) {
	q := requ.URL.Query()
	var req timing.ComparisonRequest
	var err error
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"year", &req.Year},
		{"driver1", &req.Driver1},
		{"driver2", &req.Driver2},
		{"laps", &req.NumLaps},
	} {
		if *p.dst, err = intParam(q, p.name); err != nil {
			writeError(w, err)
			return
		}
	}
	req.Location = q.Get("location")
	req.SessionName = q.Get("session")

	c, found, err := timing.BuildComparison(requ.Context(), s.backend, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeNotFound(w)
		return
	}

	if req.SessionName == "" {
		req.SessionName = timing.DefaultSessionName
	}
	writeJSON(w, http.StatusOK, head2HeadResponse{
		Year:       req.Year,
		Location:   req.Location,
		Session:    req.SessionName,
		Summary:    c.IntervalSummary(),
		Comparison: c,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, requ *http.Request) {
	year, err := intParam(requ.URL.Query(), "year")
	if err == nil && year <= 0 {
		err = &timing.ValidationError{Field: "year", Reason: "must be positive"}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	events, err := s.backend.Events(requ.Context(), year)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []store.Location{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Year: year, Events: events})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
