package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom/internal/apperr"
	"classroom/internal/attendance"
	"classroom/internal/auth"
)

const maxWebhookBody = 1 << 20

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Wrap(apperr.Validation, "api.bind", err)
	}
	return nil
}

func (s *server) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	updated, err := req.toSchedule(c.Param("classID"))
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.Sessions.UpdateSchedule(c.Request.Context(), updated)
	if err != nil {
		writeError(c, err)
		return
	}
	if claims, ok := auth.ClaimsFrom(c); ok {
		s.Log.InfoContext(c.Request.Context(), "schedule updated by organizer",
			slog.String("class_id", updated.ClassID), slog.String("organizer", claims.Subject))
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) getSchedule(c *gin.Context) {
	sched, err := s.Sessions.GetSchedule(c.Request.Context(), c.Param("classID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *server) listSessions(c *gin.Context) {
	list, err := s.Sessions.ListSessions(c.Request.Context(), c.Param("classID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (s *server) issueKey(c *gin.Context) {
	studentID := c.Param("studentID")
	if claims, ok := auth.ClaimsFrom(c); !ok || (claims.Role == auth.RoleStudent && claims.Subject != studentID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "customer keys are only issued to their student"})
		return
	}
	key, err := s.Issuer.Issue(c.Request.Context(), c.Param("sessionID"), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customerKey": key})
}

func (s *server) markPresent(c *gin.Context) {
	var req markPresentRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			writeError(c, err)
			return
		}
	}
	rec, err := s.Correlator.MarkPresent(c.Request.Context(), c.Param("sessionID"), c.Param("studentID"), req.Name, req.Email, s.clock())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *server) listAttendance(c *gin.Context) {
	records, err := s.Correlator.List(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// webhook acknowledges anything it cannot act on so the provider stops
// redelivering it; only storage failures ask for a retry.
func (s *server) webhook(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, apperr.Wrap(apperr.Validation, "api.webhook", err))
		return
	}
	key, ev, err := attendance.ParseWebhook(body, s.clock())
	if err != nil {
		writeError(c, err)
		return
	}

	out, err := s.Correlator.OnMeetingEvent(ctx, key, ev)
	switch {
	case apperr.Is(err, apperr.NotFound):
		s.Log.WarnContext(ctx, "webhook for unknown customer key dropped",
			slog.String("meeting_id", ev.MeetingID), slog.String("event", ev.Kind.String()))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case err != nil:
		s.Log.ErrorContext(ctx, "webhook processing failed", slog.String("meeting_id", ev.MeetingID), slog.Any("error", err))
		writeError(c, err)
	case out.Ignored:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "record": out.Record})
	}
}
