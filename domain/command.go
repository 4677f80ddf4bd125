package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	errs "salon-chat/errors"
)

var validate = validator.New()

// SendCommand carries everything needed to create a message.
type SendCommand struct {
	Sender  string `validate:"required"`
	Chat    string `validate:"required"`
	Content string `validate:"required"`
	ReplyTo *uuid.UUID
}

// Validate checks the command against its structural rules.
func (c SendCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return nil
}
