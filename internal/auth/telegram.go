// Package auth verifies Telegram Mini App init data.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"telegram-clicker/internal/model"
)

// Verification errors.
var (
	ErrEmptyInitData = errors.New("init data is empty")
	ErrInvalidData   = errors.New("invalid telegram init data")
	ErrMissingUser   = errors.New("init data carries no user")
)

// TelegramVerifier checks the init data signature against the bot token.
type TelegramVerifier struct {
	botToken string
	ttl      time.Duration
}

// NewTelegramVerifier creates a verifier. A zero ttl disables the auth_date expiry check.
func NewTelegramVerifier(botToken string, ttl time.Duration) *TelegramVerifier {
	return &TelegramVerifier{botToken: botToken, ttl: ttl}
}

// Verify validates the signed init data and returns the Telegram user it carries.
func (v *TelegramVerifier) Verify(rawInitData string) (*model.Identity, error) {
	if rawInitData == "" {
		return nil, ErrEmptyInitData
	}

	if err := initdata.Validate(rawInitData, v.botToken, v.ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	data, err := initdata.Parse(rawInitData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if data.User.ID == 0 {
		return nil, ErrMissingUser
	}

	return &model.Identity{
		ID:        strconv.FormatInt(data.User.ID, 10),
		Username:  data.User.Username,
		FirstName: data.User.FirstName,
	}, nil
}
