package filters

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"serotonyl.ru/tgcmbot/internal/common"
	"serotonyl.ru/tgcmbot/internal/config"
)

const channelID = int64(-1001)

type fakeAdmins struct {
	admins []tgbotapi.ChatMember
	err    error
	calls  int
	chatID int64
}

func (f *fakeAdmins) GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	f.calls++
	f.chatID = cfg.ChatID
	return f.admins, f.err
}

func message(chatID, userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		From: &tgbotapi.User{ID: userID},
		Text: "/stats",
	}
}

func TestChatFilter(t *testing.T) {
	f := NewChatFilter(channelID)

	assert.True(t, f.CheckChatMember(&tgbotapi.ChatMemberUpdated{Chat: tgbotapi.Chat{ID: channelID}}))
	assert.False(t, f.CheckChatMember(&tgbotapi.ChatMemberUpdated{Chat: tgbotapi.Chat{ID: -42}}))
	assert.False(t, f.CheckChatMember(nil))
}

func TestAdminGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("user in list, no lookup", func(t *testing.T) {
		api := &fakeAdmins{}
		g := NewAdminGuard(&config.Config{
			ChannelID: channelID, AdminIDs: []int64{7}, AdminMatch: config.AdminMatchUser,
		}, api)

		assert.NoError(t, g.Authorize(ctx, message(100, 7)))
		assert.ErrorIs(t, g.Authorize(ctx, message(7, 100)), common.ErrNotAdmin)
		assert.Zero(t, api.calls)
	})

	t.Run("chat id match", func(t *testing.T) {
		g := NewAdminGuard(&config.Config{
			ChannelID: channelID, AdminIDs: []int64{-500}, AdminMatch: config.AdminMatchChat,
		}, &fakeAdmins{})

		assert.NoError(t, g.Authorize(ctx, message(-500, 1)))
		assert.ErrorIs(t, g.Authorize(ctx, message(1, -500)), common.ErrNotAdmin)
	})

	t.Run("channel admin lookup", func(t *testing.T) {
		api := &fakeAdmins{admins: []tgbotapi.ChatMember{
			{User: &tgbotapi.User{ID: 9}, Status: "creator"},
			{User: &tgbotapi.User{ID: 10}, Status: "administrator"},
		}}
		g := NewAdminGuard(&config.Config{
			ChannelID: channelID, AdminMatch: config.AdminMatchUser, AdminChannelLookup: true,
		}, api)

		assert.NoError(t, g.Authorize(ctx, message(10, 10)))
		assert.Equal(t, channelID, api.chatID)
		assert.ErrorIs(t, g.Authorize(ctx, message(11, 11)), common.ErrNotAdmin)
		assert.Equal(t, 2, api.calls)
	})

	t.Run("list match skips lookup", func(t *testing.T) {
		api := &fakeAdmins{}
		g := NewAdminGuard(&config.Config{
			ChannelID: channelID, AdminIDs: []int64{7}, AdminMatch: config.AdminMatchUser, AdminChannelLookup: true,
		}, api)

		assert.NoError(t, g.Authorize(ctx, message(7, 7)))
		assert.Zero(t, api.calls)
	})

	t.Run("lookup error denies", func(t *testing.T) {
		g := NewAdminGuard(&config.Config{
			ChannelID: channelID, AdminMatch: config.AdminMatchUser, AdminChannelLookup: true,
		}, &fakeAdmins{err: errors.New("bad gateway")})

		assert.ErrorIs(t, g.Authorize(ctx, message(1, 1)), common.ErrNotAdmin)
	})

	t.Run("message without sender", func(t *testing.T) {
		g := NewAdminGuard(&config.Config{ChannelID: channelID, AdminIDs: []int64{7}}, &fakeAdmins{})
		msg := message(7, 7)
		msg.From = nil

		assert.ErrorIs(t, g.Authorize(ctx, msg), common.ErrNotAdmin)
	})
}
