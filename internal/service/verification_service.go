package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
	"github.com/noah-isme/gpa-tracker-api/pkg/jobs"
	"github.com/noah-isme/gpa-tracker-api/pkg/mailer"
)

// JobTypeSendMail is the queue job type carrying a mailer.Message payload.
const JobTypeSendMail = "send_mail"

type verificationRepository interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	FindLatestValid(ctx context.Context, email, code string, now time.Time) (*models.VerificationCode, error)
	MarkUsed(ctx context.Context, id string) error
}

type verificationUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
}

type mailQueue interface {
	Enqueue(job jobs.Job) error
}

// VerificationService issues and checks six-digit email verification codes.
type VerificationService struct {
	codes     verificationRepository
	users     verificationUserRepository
	queue     mailQueue
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
	generate  func() (string, error)
}

// NewVerificationService constructs the service. ttl defaults to ten minutes.
func NewVerificationService(codes verificationRepository, users verificationUserRepository, queue mailQueue, validate *validator.Validate, logger *zap.Logger, ttl time.Duration) *VerificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &VerificationService{
		codes:     codes,
		users:     users,
		queue:     queue,
		validator: validate,
		logger:    logger,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		generate:  generateVerificationCode,
	}
}

// SendCode stores a fresh code for a registered email and queues its delivery.
func (s *VerificationService) SendCode(ctx context.Context, req models.SendCodeRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "no account registered with this email")
		}
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	value, err := s.generate()
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	code := &models.VerificationCode{
		UserID:    &user.ID,
		Email:     user.Email,
		Code:      value,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store code")
	}

	msg := mailer.Message{
		To:      user.Email,
		ToName:  user.Name,
		Subject: "Your verification code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", value, int(s.ttl.Minutes())),
		HTML:    fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>", value, int(s.ttl.Minutes())),
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeSendMail, Payload: msg}); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue verification email")
	}
	s.logger.Info("verification code issued", zap.String("user_id", user.ID))
	return code.ExpiresAt, nil
}

// VerifyCode consumes the most recent matching code and marks the account verified.
func (s *VerificationService) VerifyCode(ctx context.Context, req models.VerifyCodeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	code, err := s.codes.FindLatestValid(ctx, req.Email, req.Code, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification code")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load code")
	}
	if err := s.codes.MarkUsed(ctx, code.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume code")
	}

	userID := ""
	if code.UserID != nil {
		userID = *code.UserID
	} else {
		user, err := s.users.FindByEmail(ctx, code.Email)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		userID = user.ID
	}
	if err := s.users.MarkVerified(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify user")
	}
	return nil
}

func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// MailWorker delivers queued mail jobs through a mailer.Sender.
type MailWorker struct {
	sender  mailer.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMailWorker constructs a MailWorker.
func NewMailWorker(sender mailer.Sender, metrics *MetricsService, logger *zap.Logger) *MailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{sender: sender, metrics: metrics, logger: logger}
}

// Handle is a jobs.Handler. Errors are returned so the queue retries.
func (w *MailWorker) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		w.logger.Error("mail job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return w.sender.Send(ctx, msg)
}

// Outcome is a jobs.Outcome recording delivery results.
func (w *MailWorker) Outcome(job jobs.Job, err error) {
	if err != nil {
		w.metrics.RecordMailJob("failed")
		w.logger.Warn("mail delivery failed", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
		return
	}
	w.metrics.RecordMailJob("sent")
}
