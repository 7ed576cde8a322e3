package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"github.com/ceyewan/chanlock/chanlock"
	"github.com/ceyewan/chanlock/clog"
	slacknotify "github.com/ceyewan/chanlock/notify/slack"
	"github.com/ceyewan/chanlock/stats"
	"github.com/ceyewan/chanlock/xerrors"
)

const (
	msgParseFailed    = "failed to parse request"
	msgInvalidRequest = "invalid request"
	msgInvalidTeam    = "invalid team"
	msgNothingToDo    = "nothing to do"
	msgStatsFailed    = "Failed to read stats, try again"
)

// ============================================================================
// 斜杠命令
// ============================================================================

func (s *Server) handleLock(c *gin.Context) {
	req, ok := s.parseCommand(c)
	if !ok {
		return
	}
	s.respond(c, s.svc.Acquire(c.Request.Context(), req))
}

func (s *Server) handleUnlock(c *gin.Context) {
	req, ok := s.parseCommand(c)
	if !ok {
		return
	}
	s.respond(c, s.svc.Release(c.Request.Context(), req))
}

func (s *Server) handleStats(c *gin.Context) {
	req, ok := s.parseCommand(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	st, err := s.opts.stats.Get(ctx, req.Name)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read stats", clog.String("channel", req.Name), clog.Error(err))
		c.String(http.StatusOK, msgStatsFailed)
		return
	}

	text := stats.Format(st)
	if s.opts.notifier != nil {
		if err := s.opts.notifier.Post(ctx, req.Name, text); err == nil {
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusOK, inChannel(text))
}

// parseCommand 解析斜杠命令表单并校验团队，失败时已写入响应
func (s *Server) parseCommand(c *gin.Context) (chanlock.Request, bool) {
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil || cmd.ChannelID == "" || cmd.UserID == "" {
		c.String(http.StatusBadRequest, msgInvalidRequest)
		return chanlock.Request{}, false
	}
	if !s.teamAllowed(cmd.TeamID) {
		s.logger.WarnContext(c.Request.Context(), "rejected foreign team", clog.String("team", cmd.TeamID))
		c.String(http.StatusForbidden, msgInvalidTeam)
		return chanlock.Request{}, false
	}

	minutes, annotation := parseText(cmd.Text)
	return chanlock.Request{
		Name:       cmd.ChannelID,
		UserID:     cmd.UserID,
		UserName:   cmd.UserName,
		Minutes:    minutes,
		Annotation: annotation,
	}, true
}

func (s *Server) teamAllowed(team string) bool {
	return s.cfg.TeamID == "" || team == s.cfg.TeamID
}

// parseText 第一个词是整数时作为分钟数，其余作为备注
//
//	"45 deploying api" => 45, "deploying api"
//	"deploying api"    => 0,  "deploying api"
func parseText(text string) (minutes int, annotation string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, ""
	}
	if n, err := strconv.Atoi(fields[0]); err == nil {
		return n, strings.Join(fields[1:], " ")
	}
	return 0, strings.Join(fields, " ")
}

// ============================================================================
// 交互回调
// ============================================================================

// handleDialog 处理到期提醒私信上的按钮，频道 ID 来自附件的 fallback
func (s *Server) handleDialog(c *gin.Context) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(c.PostForm("payload")), &cb); err != nil {
		c.String(http.StatusOK, msgParseFailed)
		return
	}
	if cb.CallbackID != slacknotify.CallbackLockExpiry ||
		len(cb.OriginalMessage.Attachments) == 0 ||
		len(cb.ActionCallback.AttachmentActions) == 0 {
		c.String(http.StatusOK, msgInvalidRequest)
		return
	}
	if !s.teamAllowed(cb.Team.ID) {
		c.String(http.StatusForbidden, msgInvalidTeam)
		return
	}

	ctx := c.Request.Context()
	req := chanlock.Request{
		Name:     cb.OriginalMessage.Attachments[0].Fallback,
		UserID:   cb.User.ID,
		UserName: cb.User.Name,
		Minutes:  slacknotify.LockMoreMinutes,
	}

	switch action := cb.ActionCallback.AttachmentActions[0].Value; action {
	case slacknotify.ActionLock:
		s.respond(c, s.svc.Extend(ctx, req))
	case slacknotify.ActionUnlock:
		s.respond(c, s.svc.Release(ctx, req))
	default:
		s.logger.DebugContext(ctx, "expiry reminder dismissed",
			clog.String("channel", req.Name), clog.String("action", action))
		c.String(http.StatusOK, msgNothingToDo)
	}
}

// ============================================================================
// 响应
// ============================================================================

// respond 把锁操作结果映射为 Slack 可接受的响应
func (s *Server) respond(c *gin.Context, res chanlock.Result) {
	switch res.Outcome {
	case chanlock.OutcomeAcquired, chanlock.OutcomeExtended, chanlock.OutcomeReleased:
		if res.Posted {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, inChannel(res.Message))
	case chanlock.OutcomeFailed:
		if xerrors.Is(res.Err, xerrors.ErrInvalidInput) {
			c.String(http.StatusBadRequest, res.Message)
			return
		}
		s.logger.ErrorContext(c.Request.Context(), "lock operation failed", clog.Error(res.Err))
		c.String(http.StatusOK, res.Message)
	default:
		c.String(http.StatusOK, res.Message)
	}
}

func inChannel(text string) gin.H {
	return gin.H{"response_type": slack.ResponseTypeInChannel, "text": text}
}
