package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation"
)

type LoginMessage struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (e LoginMessage) Type() string { return "session.login" }

// Validate checks the form before it reaches the backend
func (e LoginMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Username, validation.Required),
		validation.Field(&e.Password, validation.Required),
	)
}

type LoginHandler struct {
	controller *AuthController
}

func NewLoginHandler(controller *AuthController) *LoginHandler {
	return &LoginHandler{controller: controller}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	event.Username = strings.TrimSpace(event.Username)
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login form")
	}
	return h.controller.Login(ctx, event.Username, event.Password)
}
