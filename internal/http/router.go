package http

import (
	"net/http"
	"strings"
)

// RouterConfig wires handlers into the router. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Meetings   *MeetingHandler
	Calendar   *CalendarHandler
	Events     *EventsHandler
	Metrics    http.Handler
	Observer   RequestObserver
	Middleware []func(http.Handler) http.Handler
}

// route binds methods to handlers for a single path pattern.
type route map[string]http.HandlerFunc

// NewRouter registers every configured handler. OPTIONS answers 200 and other unknown methods get 405.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	responder := newResponder(nil)

	handle := func(pattern string, methods route, withMeetingID bool) {
		allowed := make([]string, 0, len(methods)+1)
		for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
			if _, ok := methods[m]; ok {
				allowed = append(allowed, m)
			}
		}
		allowed = append(allowed, http.MethodOptions)

		mux.HandleFunc(pattern, instrument(cfg.Observer, pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			handler, ok := methods[r.Method]
			if !ok {
				w.Header().Set("Allow", strings.Join(allowed, ", "))
				responder.writeError(r.Context(), w, http.StatusMethodNotAllowed, "", errMethodNotAllowed)
				return
			}
			if withMeetingID {
				id := strings.TrimSpace(r.PathValue("id"))
				if id == "" {
					responder.badRequest(r.Context(), w, errMissingMeetingID)
					return
				}
				r = r.WithContext(ContextWithMeetingID(r.Context(), id))
			}
			handler(w, r)
		}))
	}

	if cfg.Meetings != nil {
		handle("/meetings", route{http.MethodPost: cfg.Meetings.Create}, false)
		handle("/meetings/{id}", route{
			http.MethodGet: cfg.Meetings.Get,
			http.MethodPut: cfg.Meetings.Update,
		}, true)
		handle("/meetings/{id}/availability", route{http.MethodPost: cfg.Meetings.SubmitAvailability}, true)
		handle("/meetings/{id}/suggest", route{http.MethodPost: cfg.Meetings.Suggest}, true)
		handle("/meetings/{id}/calendar.ics", route{http.MethodGet: cfg.Meetings.ExportICS}, true)
	}

	if cfg.Events != nil {
		handle("/meetings/{id}/events", route{http.MethodGet: cfg.Events.Feed}, true)
	}

	if cfg.Calendar != nil {
		handle("/calendar/busy-times", route{http.MethodPost: cfg.Calendar.BusyTimes}, false)
		handle("/calendar/auth-url", route{http.MethodPost: cfg.Calendar.AuthURL}, false)
		handle("/calendar/token", route{http.MethodPost: cfg.Calendar.Token}, false)
	}

	if cfg.Metrics != nil {
		handle("/metrics", route{http.MethodGet: cfg.Metrics.ServeHTTP}, false)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
