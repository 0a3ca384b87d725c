package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/service"
)

// AccountHandler handles the launcher bot's account commands.
type AccountHandler struct {
	accountService *service.AccountService
	webAppURL      string
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, webAppURL string) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		webAppURL:      webAppURL,
	}
}

// IdentityFromSender converts a Telegram sender into an identity.
// The bot API has already authenticated the sender.
func IdentityFromSender(sender *tele.User) *model.Identity {
	return &model.Identity{
		ID:        strconv.FormatInt(sender.ID, 10),
		Username:  sender.Username,
		FirstName: sender.FirstName,
	}
}

// HandleStart handles the /start command.
// Registers the user and replies with a button that opens the Mini App.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	identity := IdentityFromSender(sender)
	user, created, err := h.accountService.EnsureTelegramUser(ctx, identity)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to register user from /start")
		return c.Reply("❌ Could not create your account, please try again later")
	}

	return c.Reply(StartMessage(user, created), h.playMarkup())
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.accountService.EnsureTelegramUser(ctx, IdentityFromSender(sender))
	if err != nil {
		return c.Reply("❌ Could not load your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"💰 Balance: %d\n"+
			"🏆 Total earned: %d",
		user.PointsBalance, user.Points,
	))
}

// HandleHistory handles the /history command.
// Lists the most recent points rewards.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	transactions, err := h.accountService.RecentTransactions(ctx, IdentityFromSender(sender), 10)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Reply("Send /start to create your account first")
		}
		return c.Reply("❌ Could not load your history, please try again later")
	}

	return c.Reply(HistoryMessage(transactions))
}

// HistoryMessage builds the /history reply text.
func HistoryMessage(transactions []*model.PointsTransaction) string {
	if len(transactions) == 0 {
		return "📭 No rewards yet. Complete tasks in the app to earn points!"
	}

	var sb strings.Builder
	sb.WriteString("📜 Recent rewards\n")
	sb.WriteString("━━━━━━━━━━━━━━━\n")
	for _, tx := range transactions {
		sb.WriteString(fmt.Sprintf("%s  +%d\n", tx.CreatedAt.Format("2006-01-02 15:04"), tx.Amount))
	}
	sb.WriteString("━━━━━━━━━━━━━━━")
	return sb.String()
}

// StartMessage builds the /start reply text.
func StartMessage(user *model.User, created bool) string {
	name := user.Username
	if name == "" {
		name = "player"
	}
	if created {
		return fmt.Sprintf(
			"🎉 Welcome, %s!\n\n"+
				"Your account is ready. Tap below to start clicking and complete tasks for points.\n\n"+
				"Commands:\n"+
				"/balance - Show your points\n"+
				"/history - Recent rewards",
			name,
		)
	}
	return fmt.Sprintf(
		"👋 Welcome back, %s!\n\n"+
			"Current balance: %d",
		name, user.PointsBalance,
	)
}

// playMarkup returns the inline keyboard that opens the Mini App, if one is configured.
func (h *AccountHandler) playMarkup() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	if h.webAppURL == "" {
		return markup
	}
	markup.InlineKeyboard = [][]tele.InlineButton{{
		{Text: "🎮 Play", WebApp: &tele.WebApp{URL: h.webAppURL}},
	}}
	return markup
}
