package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router standard library http.ServeMux with method-qualified patterns
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes liveness probe
func (r *Router) RegisterHealthRoutes() {
	r.Handle("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterLunchRoutes identity, rotation, break and reporting routes
func (r *Router) RegisterLunchRoutes(h *LunchHandler, auth *Auth) {
	const base = "/lunch/api/v1"
	sup := auth.RequireSupervisor
	me := auth.RequirePerson

	// identity
	r.Handle("POST "+base+"/identity/resolve", h.ResolvePerson)
	r.Handle("POST "+base+"/identity/register", h.RegisterOperator)
	r.Handle("POST "+base+"/identity/contact", me(h.UpdateContact))
	r.Handle("POST "+base+"/identity/sync-admins", sup(h.SyncAdmins))

	// schedules
	r.Handle("GET "+base+"/schedules/today", sup(h.TodaySchedules))
	r.Handle("POST "+base+"/shifts/{id}/schedule", sup(h.BuildSchedule))
	r.Handle("GET "+base+"/schedules/{id}/current", me(h.CurrentGroup))
	r.Handle("GET "+base+"/schedules/{id}/next", me(h.NextGroup))
	r.Handle("POST "+base+"/schedules/{id}/advance", sup(h.Advance))
	r.Handle("POST "+base+"/schedules/{id}/reset", sup(h.Reset))
	r.Handle("POST "+base+"/schedules/{id}/reorder", sup(h.Reorder))
	r.Handle("POST "+base+"/schedules/{id}/operators", sup(h.AddOperator))
	r.Handle("DELETE "+base+"/schedules/{id}/operators/{pid}", sup(h.RemoveOperator))
	r.Handle("GET "+base+"/schedules/{id}/stats", sup(h.ScheduleStats))
	r.Handle("GET "+base+"/schedules/{id}/export", sup(h.ExportSchedule))
	r.Handle("GET "+base+"/roster/stats", sup(h.RosterStats))

	// breaks
	r.Handle("GET "+base+"/me/break", me(h.MyBreak))
	r.Handle("POST "+base+"/me/break/start", me(h.StartMyBreak))
	r.Handle("POST "+base+"/me/break/end", me(h.EndMyBreak))
	r.Handle("POST "+base+"/breaks/{id}/missed", sup(h.MarkMissed))
	r.Handle("POST "+base+"/sweep", sup(h.Sweep))
	r.Handle("GET "+base+"/events", sup(h.Events))
}
