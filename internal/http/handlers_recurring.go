package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"moneyflow/internal/calendar"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/recurrence"
	"moneyflow/internal/storage"
)

const feedLoadTimeout = 10 * time.Second

// requestError marks malformed input; integrityError marks a stored
// definition the engine cannot interpret.
type requestError struct{ err error }
type integrityError struct{ err error }

func (e requestError) Error() string   { return e.err.Error() }
func (e requestError) Unwrap() error   { return e.err }
func (e integrityError) Error() string { return e.err.Error() }
func (e integrityError) Unwrap() error { return e.err }

// statusFor maps handler errors onto HTTP statuses.
func statusFor(err error) int {
	var reqErr requestError
	var intErr integrityError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &intErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "recurring transaction not found"
	case http.StatusInternalServerError:
		logger := log.FromContext(r.Context())
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err,
			logger.Component(), log.OpServe, log.LogFields{log.FieldPath: r.URL.Path})
		msg = "internal error"
	}
	ErrorResponse(status, msg).Write(w)
}

// handleCron runs the job for today in the configured zone.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := s.today()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	summary, err := s.runner.Run(ctx, today)
	s.appMetrics.recordRun(summary, err)
	// lastGenerated may have moved even on a partial run.
	s.InvalidateFeeds()
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "CRON ERROR",
			log.FieldDate, today.String(), log.FieldError, err)
		CronFailedResponse().Write(w)
		return
	}

	NewResponse().JSON(summary).Write(w)
}

type nextResponse struct {
	ID        string         `json:"id"`
	Frequency core.Frequency `json:"frequency"`
	Cadence   string         `json:"cadence"`
	Next      *core.Date     `json:"next"`
	RRule     string         `json:"rrule,omitempty"`
	DTStart   *core.Date     `json:"dtstart,omitempty"`
}

type upcomingResponse struct {
	ID    string      `json:"id"`
	Dates []core.Date `json:"dates"`
}

func (s *Server) loadDefinition(ctx context.Context, id string) (core.RecurringTransaction, recurrence.Definition, error) {
	rt, err := s.store.GetRecurring(ctx, id)
	if err != nil {
		return rt, recurrence.Definition{}, err
	}
	def, err := recurrence.FromRecord(rt)
	if err != nil {
		return rt, def, integrityError{err}
	}
	return rt, def, nil
}

// handleNext reports the next date the job would generate the definition.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, err := ParseDateParam(r.URL.Query(), "from", s.today())
	if err != nil {
		s.writeError(w, r, requestError{err})
		return
	}

	rt, def, err := s.loadDefinition(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := nextResponse{ID: rt.ID, Frequency: rt.Frequency, Cadence: def.Cadence.String()}
	if next, ok := nextOccurrence(rt, def, from); ok {
		resp.Next = &next
	}
	if rule, start, err := calendar.RRule(def); err == nil {
		resp.RRule = rule
		resp.DTStart = &start
	}

	NewResponse().JSON(resp).Write(w)
}

// nextOccurrence applies the gates the job applies on top of NextDate.
func nextOccurrence(rt core.RecurringTransaction, def recurrence.Definition, from core.Date) (core.Date, bool) {
	if !rt.IsActive {
		return core.Date{}, false
	}
	return recurrence.NextScheduled(def, from)
}

// handleUpcoming lists the next occurrences assuming each is generated.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	from, err := ParseDateParam(query, "from", s.today())
	if err != nil {
		s.writeError(w, r, requestError{err})
		return
	}
	count, err := ParseCountParam(query)
	if err != nil {
		s.writeError(w, r, requestError{err})
		return
	}

	rt, def, err := s.loadDefinition(ctx, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dates := []core.Date{}
	if rt.IsActive {
		dates = recurrence.Upcoming(def, from, count)
	}
	NewResponse().JSON(upcomingResponse{ID: rt.ID, Dates: dates}).Write(w)
}

// handleFeed serves active definitions as an iCalendar document.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := ParseUserParam(r.URL.Query())
	if err != nil {
		s.writeError(w, r, requestError{err})
		return
	}

	logger := log.FromContext(ctx)
	ics, hit, err := s.feeds.Get(ctx, "feed:"+user, func(ctx context.Context) (string, error) {
		// Shared by concurrent callers, so detached from this request.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedLoadTimeout)
		defer cancel()
		return s.buildFeed(ctx, logger, user)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cacheState := "MISS"
	if hit {
		cacheState = "HIT"
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
	}
	NewResponse().
		Header("Content-Disposition", `inline; filename="recurring.ics"`).
		Header("Cache-Control", "private, max-age=300").
		Header("X-Cache", cacheState).
		Calendar(ics).
		Write(w)
}

func (s *Server) buildFeed(ctx context.Context, logger *log.Logger, user string) (string, error) {
	var (
		items []core.RecurringTransaction
		err   error
	)
	if user == "" {
		items, err = s.store.ListActiveRecurring(ctx)
	} else {
		items, err = s.store.ListRecurring(ctx, user)
	}
	if err != nil {
		return "", err
	}

	name := "Recurring transactions"
	if user != "" {
		name += " (" + user + ")"
	}
	doc, err := calendar.Feed(name, items, s.now().UTC())
	if err != nil {
		// Broken definitions are left out; the rest of the feed is served.
		logger.WarnContext(ctx, "Calendar feed is incomplete", log.FieldError, err)
	}
	return doc, nil
}
