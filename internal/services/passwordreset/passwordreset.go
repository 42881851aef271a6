// Package passwordreset реализует восстановление пароля через одноразовый
// токен, доставляемый почтой.
package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextgig-app/billing-service/internal/lib/password"
	"github.com/nextgig-app/billing-service/internal/lib/rabbitmq"
	"github.com/nextgig-app/billing-service/internal/lib/sl"
	"github.com/nextgig-app/billing-service/internal/lib/token"
	"github.com/nextgig-app/billing-service/internal/models"
	"github.com/nextgig-app/billing-service/internal/storage"
)

// Ошибки, возвращаемые при подтверждении сброса пароля.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

const tokenTTL = time.Hour

// Repository операции хранилища для восстановления пароля.
type Repository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateVerificationToken(ctx context.Context, identifier, tokenValue string, expires time.Time) (int, error)
	FindVerificationToken(ctx context.Context, tokenValue string) (*models.VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, tokenValue string) error
	UpdateUserPasswordHash(ctx context.Context, email, passwordHash string) error
}

// MailPublisher отправляет письмо со ссылкой сброса в очередь почты.
type MailPublisher interface {
	PublishMail(msg rabbitmq.MailMessage) error
}

// Service сервис восстановления пароля.
type Service struct {
	repo     Repository
	mail     MailPublisher
	log      *slog.Logger
	resetURL string

	now func() time.Time
}

// New создает сервис восстановления пароля. resetURL — базовый адрес страницы
// сброса, к которому добавляется токен.
func New(repo Repository, mail MailPublisher, log *slog.Logger, resetURL string) *Service {
	return &Service{
		repo:     repo,
		mail:     mail,
		log:      log,
		resetURL: resetURL,
		now:      time.Now,
	}
}

// Request запускает сброс пароля для адреса email. Ответ всегда успешный:
// по реакции эндпоинта нельзя выяснить, зарегистрирован ли адрес.
// Письмо уходит только существующему пользователю.
func (s *Service) Request(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("password reset lookup failed", sl.Err(err))
		}
		return nil
	}

	resetToken, err := token.Generate()
	if err != nil {
		s.log.Error("reset token generation failed", sl.Err(err))
		return nil
	}

	expires := s.now().Add(tokenTTL)
	if _, err := s.repo.CreateVerificationToken(ctx, user.Email, resetToken, expires); err != nil {
		s.log.Error("reset token store failed", sl.Err(err))
		return nil
	}

	err = s.mail.PublishMail(rabbitmq.MailMessage{
		To:       user.Email,
		Template: "password-reset",
		ResetURL: s.resetURL + "?token=" + resetToken,
	})
	if err != nil {
		s.log.Error("reset mail publish failed", sl.Err(err))
		return nil
	}

	s.log.Info("password reset requested", slog.String("email", user.Email))
	return nil
}

// Confirm проверяет токен и устанавливает новый пароль. Токен одноразовый:
// успешное подтверждение удаляет его; просроченный токен удаляется при
// первой же попытке использования.
func (s *Service) Confirm(ctx context.Context, tokenValue, newPassword string) error {
	const op = "services.passwordreset.Confirm"

	record, err := s.repo.FindVerificationToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if !s.now().Before(record.Expires) {
		if err := s.repo.DeleteVerificationToken(ctx, tokenValue); err != nil {
			s.log.Warn("expired token cleanup failed", sl.Err(err))
		}
		return ErrInvalidToken
	}

	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateUserPasswordHash(ctx, record.Identifier, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.DeleteVerificationToken(ctx, tokenValue); err != nil {
		s.log.Warn("used token cleanup failed", sl.Err(err))
	}

	s.log.Info("password reset confirmed", slog.String("email", record.Identifier))
	return nil
}
