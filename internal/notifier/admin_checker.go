package notifier

import (
	"context"

	"github.com/laraveldev/tg-bot/internal/service"
)

// ChatMembers Bot API membership lookups
type ChatMembers interface {
	GetChatMember(ctx context.Context, chatID, userID string) (service.ChatMember, error)
	GetChatAdministrators(ctx context.Context, chatID string) ([]service.ChatMember, error)
}

// TelegramAdminChecker group admin status from chat membership
type TelegramAdminChecker struct {
	members ChatMembers
}

func NewTelegramAdminChecker(members ChatMembers) *TelegramAdminChecker {
	return &TelegramAdminChecker{members: members}
}

var (
	_ service.AdminChecker = (*TelegramAdminChecker)(nil)
	_ service.AdminLister  = (*TelegramAdminChecker)(nil)
)

// IsGroupAdmin creator or administrator of chatID
func (a *TelegramAdminChecker) IsGroupAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	m, err := a.members.GetChatMember(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return isAdminStatus(m.Status), nil
}

// GroupAdministrators administrator list of chatID
func (a *TelegramAdminChecker) GroupAdministrators(ctx context.Context, chatID string) ([]service.ChatMember, error) {
	return a.members.GetChatAdministrators(ctx, chatID)
}

func isAdminStatus(status string) bool {
	return status == "creator" || status == "administrator"
}
