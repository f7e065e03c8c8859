package publisher

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
)

// Status is the body returned by every admin endpoint.
type Status struct {
	Events        uint16 `json:"events"`
	UsedBytes     int64  `json:"usedBytes"`
	CapacityBytes int64  `json:"capacityBytes"`
	Sending       bool   `json:"sending"`
	Paused        bool   `json:"paused"`
	State         string `json:"state"`
	RetryInterval string `json:"retryInterval"`
	Error         string `json:"error,omitempty"`
}

// AdminHandler exposes runtime control of p and its queue:
//
//	POST /admin/pause
//	POST /admin/resume
//	POST /admin/clear
//	GET  /admin/count
//	PUT  /admin/retry?interval=30s
func AdminHandler(p *Publisher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /admin/pause", func(w http.ResponseWriter, r *http.Request) {
		p.Pause()
		p.writeStatus(w, http.StatusOK, nil)
	})
	mux.HandleFunc("POST /admin/resume", func(w http.ResponseWriter, r *http.Request) {
		p.Resume()
		p.writeStatus(w, http.StatusOK, nil)
	})
	mux.HandleFunc("POST /admin/clear", func(w http.ResponseWriter, r *http.Request) {
		err := p.queue.Clear()
		switch {
		case errors.Is(err, eventqueue.ErrSendInFlight):
			p.writeStatus(w, http.StatusConflict, err)
		case err != nil:
			p.writeStatus(w, http.StatusInternalServerError, err)
		default:
			p.writeStatus(w, http.StatusOK, nil)
		}
	})
	mux.HandleFunc("GET /admin/count", func(w http.ResponseWriter, r *http.Request) {
		p.writeStatus(w, http.StatusOK, nil)
	})
	mux.HandleFunc("PUT /admin/retry", func(w http.ResponseWriter, r *http.Request) {
		d, err := time.ParseDuration(r.URL.Query().Get("interval"))
		if err == nil {
			err = p.SetRetryInterval(d)
		}
		if err != nil {
			p.writeStatus(w, http.StatusBadRequest, err)
			return
		}
		p.writeStatus(w, http.StatusOK, nil)
	})

	return mux
}

func (p *Publisher) writeStatus(w http.ResponseWriter, code int, err error) {
	stats := p.queue.Stats()
	status := Status{
		Events:        uint16(stats.Count),
		UsedBytes:     stats.Used,
		CapacityBytes: stats.Capacity,
		Sending:       stats.Sending,
		Paused:        p.Paused(),
		State:         p.State().String(),
		RetryInterval: p.RetryInterval().String(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		p.log.Warnw("failed to write admin response", "error", err)
	}
}
