package chanlock

import (
	"fmt"
	"strings"
)

const (
	msgQueued         = "Currently locked, I will ping you when the lock will expire."
	msgAlreadyQueued  = "Currently locked, ping already planned."
	msgNoLock         = "No lock set"
	msgFailedLock     = "Failed to lock, try again"
	msgFailedUnlock   = "Failed to unlock, try again"
	msgFailedStatus   = "Failed to read lock, try again"
	msgInvalidRequest = "Invalid request"
)

// ReactionUnlock 锁释放后添加到状态消息上的表情
const ReactionUnlock = "unlock"

func mention(user string) string {
	return "<@" + user + ">"
}

func channelRef(name string) string {
	return "<#" + name + ">"
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func acquiredMessage(l *Lock, minutes int) string {
	return joinNonEmpty("🔐 _LOCK_", l.Annotation, fmt.Sprintf("(%s, %d mins)", mention(l.OwnerID), minutes))
}

func extendedMessage(l *Lock, minutesLeft int) string {
	return joinNonEmpty("🔐 _LOCK extended_", l.Annotation, fmt.Sprintf("(%d mins left)", minutesLeft))
}

// cappedNote 请求时长超过上限被截断时追加在获取与延长消息之后
func cappedNote(minutes int) string {
	return fmt.Sprintf(" [capped at %d mins]", minutes)
}

func forbiddenReleaseMessage(owner string) string {
	return "Cant unlock, locked by " + mention(owner)
}

func forbiddenExtendMessage(owner string) string {
	return "Cant extend, locked by " + mention(owner)
}

func releasedMessage(waiters []string, expired bool) string {
	head := "🔓 _unlock_"
	if expired {
		head += " (expired)"
	}
	if len(waiters) == 0 {
		return head
	}
	names := make([]string, len(waiters))
	for i, w := range waiters {
		names[i] = mention(w)
	}
	return head + " cc " + strings.Join(names, " ")
}

func warningMessage(name string, minutes int) string {
	return fmt.Sprintf("Your lock in %s will expire in about %d minutes", channelRef(name), minutes)
}

// lockedStatus 状态消息在锁持有期间的文本
func lockedStatus(l *Lock, minutesLeft int) string {
	return joinNonEmpty("🔐 _LOCK_", l.Annotation, fmt.Sprintf("(%s, %d mins left)", mention(l.OwnerID), minutesLeft))
}

// unlockedStatus 状态消息在锁释放后的文本
func unlockedStatus(l *Lock) string {
	return joinNonEmpty("🔓 ~_LOCK_~", l.Annotation, fmt.Sprintf("(%s)", mention(l.OwnerID)))
}

func statusMessage(l *Lock, minutesLeft int, waiters []string) string {
	text := joinNonEmpty("🔐 Locked by "+mention(l.OwnerID), l.Annotation, fmt.Sprintf("(%d mins left)", minutesLeft))
	if len(waiters) == 0 {
		return text
	}
	names := make([]string, len(waiters))
	for i, w := range waiters {
		names[i] = mention(w)
	}
	return text + "\nWaiting: " + strings.Join(names, " ")
}
