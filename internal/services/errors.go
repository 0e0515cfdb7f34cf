package services

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhoneFormat = errors.New("invalid phone format")
var ErrNotEligible = errors.New("phone not eligible")
var ErrAlreadyClaimed = errors.New("code already claimed")
var ErrInvalidRecordState = errors.New("invalid record state")
var ErrNotLoaded = errors.New("eligibility table not loaded")
var ErrJournalConflict = errors.New("journal already holds a claim for phone")

const (
	MsgClaimSuccess      = "领取成功"
	MsgInvalidPhone      = "请输入11位有效手机号"
	MsgNotEligible       = "该手机号不在领取名单中"
	MsgAlreadyClaimed    = "该兑换码已被领取"
	MsgInvalidRecord     = "兑换码状态不可用"
	MsgNotLoaded         = "数据未加载"
	MsgClaimLogCreated   = "创建新的领取记录文件"
	msgPersistenceFailed = "保存失败，请联系管理员"
)

// MissingSourceError reports an eligibility workbook that does not exist.
type MissingSourceError struct {
	Path string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("找不到文件: %s", e.Path)
}

// SchemaError reports required columns absent from a workbook header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	quoted := make([]string, 0, len(e.Missing))
	for _, name := range e.Missing {
		quoted = append(quoted, "'"+name+"'")
	}
	return fmt.Sprintf("Excel缺少%s列", strings.Join(quoted, "或"))
}

type PersistenceTarget string

const (
	TargetJournal     PersistenceTarget = "journal"
	TargetEligibility PersistenceTarget = "eligibility"
	TargetClaimLog    PersistenceTarget = "claim_log"
)

// PersistenceError reports a failed write to durable storage.
type PersistenceError struct {
	Target PersistenceTarget
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the person who submitted the request.
func Message(err error) string {
	if err == nil {
		return MsgClaimSuccess
	}

	var missing *MissingSourceError
	var schema *SchemaError
	var persistence *PersistenceError
	switch {
	case errors.Is(err, ErrInvalidPhoneFormat):
		return MsgInvalidPhone
	case errors.Is(err, ErrNotEligible):
		return MsgNotEligible
	case errors.Is(err, ErrAlreadyClaimed):
		return MsgAlreadyClaimed
	case errors.Is(err, ErrInvalidRecordState):
		return MsgInvalidRecord
	case errors.Is(err, ErrNotLoaded):
		return MsgNotLoaded
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &schema):
		return schema.Error()
	case errors.As(err, &persistence):
		return msgPersistenceFailed
	default:
		return fmt.Sprintf("加载失败: %v", err)
	}
}
