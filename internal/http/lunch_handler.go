package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/evaluator"
	"github.com/laraveldev/tg-bot/internal/notifier"
	"github.com/laraveldev/tg-bot/internal/service"
)

// SweepRunner one reminder and overdue pass
type SweepRunner interface {
	Run(ctx context.Context, now time.Time) (evaluator.SweepResult, error)
}

// EventFeed reads published lunch events back in stream order
type EventFeed interface {
	Events(ctx context.Context, since string, count int64) ([]notifier.StreamEvent, error)
}

// LunchHandler HTTP surface of the lunch engine
type LunchHandler struct {
	svc         *service.LunchService
	sweeper     SweepRunner
	feed        EventFeed
	clock       service.Clock
	groupChatID string
	logger      *zap.Logger
}

func NewLunchHandler(svc *service.LunchService, sweeper SweepRunner, clock service.Clock, groupChatID string, logger *zap.Logger) *LunchHandler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &LunchHandler{
		svc:         svc,
		sweeper:     sweeper,
		clock:       clock,
		groupChatID: groupChatID,
		logger:      logger,
	}
}

// WithEventFeed enables the events route; nil leaves it answering 404
func (h *LunchHandler) WithEventFeed(feed EventFeed) *LunchHandler {
	h.feed = feed
	return h
}

// fail writes the mapped error; 5xx are logged
func (h *LunchHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, Fail(err.Error()))
}

// identity

func (h *LunchHandler) ResolvePerson(w http.ResponseWriter, r *http.Request) {
	var cc service.ChatContext
	if err := readBodyJSON(r, maxBodyBytes, &cc); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Identity.Resolve(r.Context(), cc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toPersonView(p)))
}

func (h *LunchHandler) RegisterOperator(w http.ResponseWriter, r *http.Request) {
	var cc service.ChatContext
	if err := readBodyJSON(r, maxBodyBytes, &cc); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Identity.RegisterOperator(r.Context(), cc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toPersonView(p)))
}

func (h *LunchHandler) SyncAdmins(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	chatID := h.chatIDOr(req.ChatID)
	if chatID == "" {
		h.fail(w, r, fmt.Errorf("%w: chat_id required", service.ErrInvalidArgument))
		return
	}
	res, err := h.svc.Identity.SyncGroupAdmins(r.Context(), chatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *LunchHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string         `json:"user_id"`
		Phone   string         `json:"phone"`
		Profile domain.Profile `json:"profile"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	actor := actorFrom(r.Context())
	if req.UserID == "" {
		req.UserID = actor.ExternalUserID.String
	}
	if !actor.ExternalUserID.Valid || actor.ExternalUserID.String != req.UserID {
		h.fail(w, r, fmt.Errorf("%w: contact can only be shared for yourself", service.ErrForbidden))
		return
	}
	p, err := h.svc.Identity.UpdateContact(r.Context(), req.UserID, req.Phone, req.Profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toPersonView(p)))
}

func (h *LunchHandler) chatIDOr(chatID string) string {
	if chatID != "" {
		return chatID
	}
	return h.groupChatID
}

// schedules

func (h *LunchHandler) TodaySchedules(w http.ResponseWriter, r *http.Request) {
	scheds, err := h.svc.Queue.TodaySchedules(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]*service.ScheduleStats, 0, len(scheds))
	for _, s := range scheds {
		st, err := h.svc.Stats.ScheduleStats(r.Context(), s.ScheduleID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *LunchHandler) BuildSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.svc.Queue.BuildOrGetToday(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toScheduleView(sched)))
}

func (h *LunchHandler) CurrentGroup(w http.ResponseWriter, r *http.Request) {
	persons, err := h.svc.Queue.CurrentGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toPersonViews(persons)))
}

func (h *LunchHandler) NextGroup(w http.ResponseWriter, r *http.Request) {
	persons, err := h.svc.Queue.NextGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toPersonViews(persons)))
}

func (h *LunchHandler) Advance(w http.ResponseWriter, r *http.Request) {
	advanced, sched, err := h.svc.Queue.Advance(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"advanced": advanced,
		"schedule": toScheduleView(sched),
	}))
}

func (h *LunchHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sched, err := h.svc.Queue.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toScheduleView(sched)))
}

func (h *LunchHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonIDs []string `json:"person_ids"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sched, err := h.svc.Queue.Reorder(r.Context(), r.PathValue("id"), req.PersonIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toScheduleView(sched)))
}

func (h *LunchHandler) AddOperator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID string `json:"person_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.PersonID == "" {
		h.fail(w, r, fmt.Errorf("%w: person_id required", service.ErrInvalidArgument))
		return
	}
	added, err := h.svc.Queue.AddOperator(r.Context(), r.PathValue("id"), req.PersonID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"added": added}))
}

func (h *LunchHandler) RemoveOperator(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Queue.RemoveOperator(r.Context(), r.PathValue("id"), r.PathValue("pid"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"removed": removed}))
}

func (h *LunchHandler) ScheduleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats.ScheduleStats(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

func (h *LunchHandler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.svc.Stats.ExportScheduleXLSX(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *LunchHandler) RosterStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats.RosterStats(r.Context(), h.chatIDOr(r.URL.Query().Get("chat_id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(st))
}

// breaks

func (h *LunchHandler) MyBreak(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Breaks.TodayBreak(r.Context(), actorFrom(r.Context()).PersonID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toBreakView(b)))
}

func (h *LunchHandler) StartMyBreak(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Breaks.StartForPerson(r.Context(), actorFrom(r.Context()).PersonID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toBreakView(b)))
}

func (h *LunchHandler) EndMyBreak(w http.ResponseWriter, r *http.Request) {
	b, minutes, err := h.svc.Breaks.EndForPerson(r.Context(), actorFrom(r.Context()).PersonID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := toBreakView(b)
	v.DurationMinutes = &minutes
	writeJSON(w, http.StatusOK, Ok(v))
}

func (h *LunchHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Breaks.MarkMissed(r.Context(), r.PathValue("id"), req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toBreakView(b)))
}

func (h *LunchHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Run(r.Context(), h.clock.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

const (
	defaultEventCount = 50
	maxEventCount     = 500
)

// Events pages through the event stream: ?since=<entry id>&count=<n>, since inclusive
func (h *LunchHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		h.fail(w, r, fmt.Errorf("%w: event stream is not configured", service.ErrNotFound))
		return
	}
	count := int64(defaultEventCount)
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			h.fail(w, r, fmt.Errorf("%w: count must be a positive integer", service.ErrInvalidArgument))
			return
		}
		count = min(n, maxEventCount)
	}
	events, err := h.feed.Events(r.Context(), r.URL.Query().Get("since"), count)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(events))
}
