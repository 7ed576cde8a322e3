package chanlock

import (
	"strconv"
	"time"
)

// 锁记录在哈希中的字段名
const (
	fieldOwnerID         = "owner_id"
	fieldOwnerName       = "owner_name"
	fieldChannelID       = "channel_id"
	fieldInitTime        = "init_time"
	fieldExpiryTime      = "expiry_time"
	fieldOwnerWarned     = "owner_warned"
	fieldExpiryAnnounced = "expiry_announced"
	fieldMessageRef      = "message_ref"
	fieldAnnotation      = "annotation"
)

var lockFields = []string{
	fieldOwnerID,
	fieldOwnerName,
	fieldChannelID,
	fieldInitTime,
	fieldExpiryTime,
	fieldOwnerWarned,
	fieldExpiryAnnounced,
	fieldMessageRef,
	fieldAnnotation,
}

// Lock 一个频道的锁状态
//
// 时间以秒为精度持久化。Lock 是存储内容的一次快照，不能跨操作复用。
type Lock struct {
	Name            string
	OwnerID         string
	OwnerName       string
	InitTime        time.Time
	ExpiryTime      time.Time
	OwnerWarned     bool
	ExpiryAnnounced bool
	MessageRef      string
	Annotation      string
}

// Expired 在 now 不早于 ExpiryTime 时为 true
func (l *Lock) Expired(now time.Time) bool {
	return now.Unix() >= l.ExpiryTime.Unix()
}

// Expiring 在 now 进入到期前的提醒窗口时为 true（已到期也为 true）
func (l *Lock) Expiring(now time.Time, window time.Duration) bool {
	return now.Unix() >= l.ExpiryTime.Add(-window).Unix()
}

// RemainingMinutes 距离到期的分钟数，向上取整，已到期为 0
func (l *Lock) RemainingMinutes(now time.Time) int {
	secs := l.ExpiryTime.Unix() - now.Unix()
	if secs <= 0 {
		return 0
	}
	return int((secs + 59) / 60)
}

// stale 已到期且已公告的记录在逻辑上不存在
func (l *Lock) stale(now time.Time) bool {
	return l.ExpiryAnnounced && l.Expired(now)
}

func (l *Lock) clone() *Lock {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// encode 写入全部字段，可选字段写空串，覆盖旧记录时不会残留上一任持有者的数据
func (l *Lock) encode() map[string]string {
	return map[string]string{
		fieldOwnerID:         l.OwnerID,
		fieldOwnerName:       l.OwnerName,
		fieldChannelID:       l.Name,
		fieldInitTime:        strconv.FormatInt(l.InitTime.Unix(), 10),
		fieldExpiryTime:      strconv.FormatInt(l.ExpiryTime.Unix(), 10),
		fieldOwnerWarned:     formatFlag(l.OwnerWarned),
		fieldExpiryAnnounced: formatFlag(l.ExpiryAnnounced),
		fieldMessageRef:      l.MessageRef,
		fieldAnnotation:      l.Annotation,
	}
}

// identity 区分同一频道上先后两把锁的字段：重新获取或延长都会改变其中之一
func (l *Lock) identity() map[string]string {
	return map[string]string{
		fieldOwnerID:    l.OwnerID,
		fieldExpiryTime: strconv.FormatInt(l.ExpiryTime.Unix(), 10),
	}
}

// decode 解析哈希字段。缺少持有者或到期时间的记录视为损坏，返回 ok=false
func decode(name string, fields map[string]string) (lock *Lock, ok bool) {
	owner := fields[fieldOwnerID]
	expiry, err := strconv.ParseInt(fields[fieldExpiryTime], 10, 64)
	if owner == "" || err != nil {
		return nil, false
	}

	initAt, err := strconv.ParseInt(fields[fieldInitTime], 10, 64)
	if err != nil || initAt > expiry {
		initAt = expiry
	}
	if ch := fields[fieldChannelID]; ch != "" {
		name = ch
	}

	return &Lock{
		Name:            name,
		OwnerID:         owner,
		OwnerName:       fields[fieldOwnerName],
		InitTime:        time.Unix(initAt, 0),
		ExpiryTime:      time.Unix(expiry, 0),
		OwnerWarned:     parseFlag(fields[fieldOwnerWarned]),
		ExpiryAnnounced: parseFlag(fields[fieldExpiryAnnounced]),
		MessageRef:      fields[fieldMessageRef],
		Annotation:      fields[fieldAnnotation],
	}, true
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseFlag(s string) bool {
	switch s {
	case "1", "true", "True":
		return true
	}
	return false
}
