package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adhand/internal/eventbus"
	"adhand/internal/playback"
	"adhand/internal/timetable"
	logx "adhand/pkg/logx"

	"github.com/gin-gonic/gin"
)

// DefaultPlayEvent is played by POST /play without a body.
const DefaultPlayEvent = timetable.Dhuhr

const sendTimeout = 2 * time.Second

type handlers struct {
	deps Deps
	log  logx.Logger
}

func (h *handlers) health(c *gin.Context) {
	body := gin.H{"status": "up"}
	if h.deps.Health != nil {
		snap := h.deps.Health()
		running := 0
		for _, t := range snap.Tasks {
			if t.Running {
				running++
			}
		}
		body["goroutines"] = running
		if snap.FirstError != "" {
			body["first_error"] = snap.FirstError
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) listTimings(c *gin.Context) {
	days := h.deps.Store.GetAll()
	timetable.SortByDate(days)
	out := make([]DayView, 0, len(days))
	for _, d := range days {
		out = append(out, dayView(d, h.deps.Location))
	}
	c.JSON(http.StatusOK, out)
}

func dayView(d timetable.DayTimetable, loc *time.Location) DayView {
	v := DayView{
		Date:      d.Date,
		Events:    make([]EventView, 0, len(d.Entries)),
		Timings:   make(map[string]string, len(d.Entries)),
		PlayAdhan: make(map[string]bool, len(d.Entries)),
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(timetable.DateLayout, d.Date, loc); err == nil {
		v.Timestamp = t.Unix()
	}
	for _, e := range d.Entries {
		name, clock, on := e.Event.String(), e.Clock.String(), d.Enabled.Get(e.Event)
		v.Events = append(v.Events, EventView{Event: name, Time: clock, Enabled: on})
		v.Timings[clock] = name
		v.PlayAdhan[name] = on
	}
	return v
}

func (h *handlers) setAllEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	enabled, ok := req.value()
	if !ok {
		badRequest(c, `body must contain "enabled"`)
		return
	}
	n := h.deps.Store.SetAllEnabled(enabled)
	h.audit(c, eventbus.ControlData{Action: "timings.set_all", Enabled: &enabled, OK: true})
	c.JSON(http.StatusAccepted, gin.H{"updated": n, "enabled": enabled})
}

func (h *handlers) patchEnabled(c *gin.Context) {
	date, name := c.Param("date"), c.Param("event")
	ev, err := timetable.ParseEvent(name)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	enabled, ok := req.value()
	if !ok {
		badRequest(c, `body must contain "enabled"`)
		return
	}

	if day, ok := h.deps.Store.Get(date); ok && !day.Has(ev) {
		err = fmt.Errorf("%w: %s is not scheduled on %s", timetable.ErrNotFound, ev, date)
	} else {
		err = h.deps.Store.PatchEnabled(date, ev, enabled)
	}
	h.audit(c, eventbus.ControlData{Action: "timings.patch", Date: date, Event: ev.String(), Enabled: &enabled, OK: err == nil, Error: errString(err)})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"date": date, "event": ev.String(), "enabled": enabled})
	case errors.Is(err, timetable.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, timetable.ErrInvalidArgument):
		badRequest(c, err.Error())
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) play(c *gin.Context) {
	ev := DefaultPlayEvent
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Event) != "" {
		e, err := timetable.ParseEvent(req.Event)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		ev = e
	}
	h.send(c, "play", ev.String(), playback.Play(ev))
}

func (h *handlers) halt(c *gin.Context)       { h.send(c, "halt", "", playback.Stop()) }
func (h *handlers) volumeUp(c *gin.Context)   { h.send(c, "volume_up", "", playback.VolumeUp()) }
func (h *handlers) volumeDown(c *gin.Context) { h.send(c, "volume_down", "", playback.VolumeDown()) }

// send queues sig. A closed channel means the controller is gone, which
// callers see as 503.
func (h *handlers) send(c *gin.Context, action, event string, sig playback.Signal) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sendTimeout)
	defer cancel()
	err := h.deps.Signals.Send(ctx, sig)
	h.audit(c, eventbus.ControlData{Action: action, Event: event, OK: err == nil, Error: errString(err)})
	if err != nil {
		h.log.Warn("signal send failed", logx.String("signal", sig.String()), logx.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"signal": sig.String()})
}

func (h *handlers) status(c *gin.Context) {
	out := StatusView{State: string(playback.StateIdle), Days: h.deps.Store.Len()}
	if q, ok := h.deps.Signals.(interface{ Len() int }); ok {
		out.Queued = q.Len()
	}
	if h.deps.Playback != nil {
		st := h.deps.Playback.Status()
		out.State = string(st.State)
		if s := st.Session; s != nil {
			out.Session = &SessionView{ID: s.ID, Event: s.Event.String(), Clip: s.Clip, Volume: s.Volume, Started: s.Started}
		}
	}
	if h.deps.Next != nil {
		if n, ok := h.deps.Next.NextAlert(); ok {
			out.Next = &NextView{Date: n.Date, Event: n.Event.String(), At: n.At}
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) history(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history storage disabled"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Warn("history read failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *handlers) audit(c *gin.Context, d eventbus.ControlData) {
	d.Remote = c.ClientIP()
	eventbus.Publish(h.deps.Bus, eventbus.ControlAction, d)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
