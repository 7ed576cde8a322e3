package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
)

// lockView 管理接口中锁的 JSON 表示
type lockView struct {
	Name             string    `json:"name"`
	OwnerID          string    `json:"owner_id"`
	OwnerName        string    `json:"owner_name,omitempty"`
	InitTime         time.Time `json:"init_time"`
	ExpiryTime       time.Time `json:"expiry_time"`
	RemainingMinutes int       `json:"remaining_minutes"`
	OwnerWarned      bool      `json:"owner_warned"`
	Annotation       string    `json:"annotation,omitempty"`
}

func newLockView(l *chanlock.Lock, now time.Time) lockView {
	return lockView{
		Name:             l.Name,
		OwnerID:          l.OwnerID,
		OwnerName:        l.OwnerName,
		InitTime:         l.InitTime.UTC(),
		ExpiryTime:       l.ExpiryTime.UTC(),
		RemainingMinutes: l.RemainingMinutes(now),
		OwnerWarned:      l.OwnerWarned,
		Annotation:       l.Annotation,
	}
}

func (s *Server) handleListLocks(c *gin.Context) {
	ctx := c.Request.Context()
	locks, err := s.svc.List(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	now := s.svc.Now()
	views := make([]lockView, 0, len(locks))
	for _, l := range locks {
		views = append(views, newLockView(l, now))
	}
	c.JSON(http.StatusOK, gin.H{"locks": views})
}

func (s *Server) handleGetLock(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")
	res := s.svc.Status(ctx, name)

	switch res.Outcome {
	case chanlock.OutcomeHeld:
		c.JSON(http.StatusOK, gin.H{"lock": newLockView(res.Lock, s.svc.Now()), "status": res.Message})
	case chanlock.OutcomeFree:
		c.JSON(http.StatusNotFound, gin.H{"error": "no lock", "name": name})
	default:
		s.logger.ErrorContext(ctx, "failed to read lock status", clog.String("channel", name), clog.Error(res.Err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	}
}
