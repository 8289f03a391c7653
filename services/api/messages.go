package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skillswap/pkg/db"
)

const maxMessageRunes = 2000

// validateMessageBody trims the body and enforces the shared message
// length limit. The gateway applies the same limit before persisting, so
// a frame that passes there never bounces here.
func validateMessageBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > maxMessageRunes {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxMessageRunes)
	}
	return body, nil
}

// AuthorizeRoom reports whether user may join the room for exchangeID:
// they must be a participant and the exchange must have been accepted
// (completed exchanges keep their history readable). This check runs at
// join time, not just page load, so a guessed room id is useless.
func (a *API) AuthorizeRoom(ctx context.Context, exchangeID, userID uuid.UUID) error {
	var model exchangeModel
	if err := a.store.ORM.WithContext(ctx).First(&model, "id = ?", exchangeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: exchange %s", ErrNotFound, exchangeID)
		}
		return err
	}

	exchange := model.toAPI()
	if !exchange.Participant(userID) {
		return fmt.Errorf("%w: not a participant of this exchange", ErrForbidden)
	}
	switch exchange.Status {
	case StatusAccepted, StatusCompleted:
		return nil
	default:
		return fmt.Errorf("%w: exchange is not active", ErrConflict)
	}
}

// PersistMessage durably stores one chat line and returns the persisted
// record with its server-assigned id and timestamp. Broadcast happens
// only after this returns.
func (a *API) PersistMessage(ctx context.Context, exchangeID, senderID uuid.UUID, body string) (Message, error) {
	body, err := validateMessageBody(body)
	if err != nil {
		return Message{}, err
	}
	if err := a.AuthorizeRoom(ctx, exchangeID, senderID); err != nil {
		return Message{}, err
	}

	model := messageModel{
		ID:         uuid.New(),
		ExchangeID: exchangeID,
		SenderID:   senderID,
		Body:       body,
	}
	if err := a.store.ORM.WithContext(ctx).Create(&model).Error; err != nil {
		return Message{}, err
	}

	// Reload for the DB-assigned timestamp.
	if err := a.store.ORM.WithContext(ctx).First(&model, "id = ?", model.ID).Error; err != nil {
		return Message{}, err
	}

	message := model.toAPI()
	messagesPersisted.Inc()
	a.publishJSON(topicMessageCreated, map[string]any{
		"message_id":  message.ID,
		"exchange_id": message.ExchangeID,
		"sender_id":   message.SenderID,
	})
	return message, nil
}

// MessageView carries a message plus its sender's display name, joined at
// read time.
type MessageView struct {
	Message
	SenderFirstName string `json:"sender_first_name" db:"sender_first_name"`
	SenderLastName  string `json:"sender_last_name" db:"sender_last_name"`
}

// listMessages serves a room's history from storage, oldest first, to
// participants only.
func (a *API) listMessages(ctx context.Context, actor uuid.UUID, exchangeID uuid.UUID) ([]MessageView, error) {
	var model exchangeModel
	if err := a.store.ORM.WithContext(ctx).First(&model, "id = ?", exchangeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: exchange %s", ErrNotFound, exchangeID)
		}
		return nil, err
	}
	if !model.toAPI().Participant(actor) {
		return nil, fmt.Errorf("%w: not a participant of this exchange", ErrForbidden)
	}

	query := `
        SELECT m.id, m.seq, m.exchange_id, m.sender_id, m.body, m.created_at,
               u.first_name AS sender_first_name, u.last_name AS sender_last_name
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.exchange_id = $1
        ORDER BY m.seq ASC
    `

	var messages []MessageView
	if err := db.Select(ctx, a.store.DB, &messages, query, exchangeID); err != nil {
		return nil, err
	}
	return messages, nil
}
