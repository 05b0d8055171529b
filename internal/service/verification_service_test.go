package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gpa-tracker-api/internal/models"
	appErrors "github.com/noah-isme/gpa-tracker-api/pkg/errors"
	"github.com/noah-isme/gpa-tracker-api/pkg/jobs"
	"github.com/noah-isme/gpa-tracker-api/pkg/mailer"
)

type codeRepoStub struct {
	codes []*models.VerificationCode
}

func (r *codeRepoStub) Create(_ context.Context, code *models.VerificationCode) error {
	code.ID = string(rune('a' + len(r.codes)))
	code.CreatedAt = time.Now().UTC().Add(time.Duration(len(r.codes)) * time.Second)
	r.codes = append(r.codes, code)
	return nil
}

func (r *codeRepoStub) FindLatestValid(_ context.Context, email, code string, now time.Time) (*models.VerificationCode, error) {
	var found *models.VerificationCode
	for _, c := range r.codes {
		if c.Email == email && c.Code == code && !c.Used && c.ExpiresAt.After(now) {
			if found == nil || c.CreatedAt.After(found.CreatedAt) {
				found = c
			}
		}
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

func (r *codeRepoStub) MarkUsed(_ context.Context, id string) error {
	for _, c := range r.codes {
		if c.ID == id {
			c.Used = true
		}
	}
	return nil
}

type verifyUserStub struct {
	user     *models.User
	verified []string
}

func (u *verifyUserStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u.user == nil || u.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return u.user, nil
}

func (u *verifyUserStub) MarkVerified(_ context.Context, id string) error {
	u.verified = append(u.verified, id)
	return nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newVerificationFixture() (*VerificationService, *codeRepoStub, *verifyUserStub, *queueStub) {
	codes := &codeRepoStub{}
	users := &verifyUserStub{user: &models.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}}
	queue := &queueStub{}
	svc := NewVerificationService(codes, users, queue, nil, nil, 10*time.Minute)
	next := []string{"111111", "222222"}
	svc.generate = func() (string, error) {
		v := next[0]
		next = next[1:]
		return v, nil
	}
	return svc, codes, users, queue
}

func TestVerificationSendCodeQueuesMail(t *testing.T) {
	svc, codes, _, queue := newVerificationFixture()
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	expires, err := svc.SendCode(context.Background(), models.SendCodeRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(10*time.Minute), expires)
	require.Len(t, codes.codes, 1)
	assert.Equal(t, "111111", codes.codes[0].Code)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeSendMail, queue.jobs[0].Type)
	msg, ok := queue.jobs[0].Payload.(mailer.Message)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.Text, "111111")
}

func TestVerificationSendCodeErrors(t *testing.T) {
	svc, _, _, queue := newVerificationFixture()

	_, err := svc.SendCode(context.Background(), models.SendCodeRequest{Email: "bad"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.SendCode(context.Background(), models.SendCodeRequest{Email: "ghost@example.com"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))

	queue.err = errors.New("queue full")
	_, err = svc.SendCode(context.Background(), models.SendCodeRequest{Email: "ada@example.com"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
}

func TestVerificationVerifyCode(t *testing.T) {
	svc, codes, users, _ := newVerificationFixture()
	ctx := context.Background()

	_, err := svc.SendCode(ctx, models.SendCodeRequest{Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.SendCode(ctx, models.SendCodeRequest{Email: "ada@example.com"})
	require.NoError(t, err)

	err = svc.VerifyCode(ctx, models.VerifyCodeRequest{Email: "ada@example.com", Code: "999999"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	require.NoError(t, svc.VerifyCode(ctx, models.VerifyCodeRequest{Email: "ada@example.com", Code: "222222"}))
	assert.Equal(t, []string{"u1"}, users.verified)
	assert.True(t, codes.codes[1].Used)
	assert.False(t, codes.codes[0].Used)

	err = svc.VerifyCode(ctx, models.VerifyCodeRequest{Email: "ada@example.com", Code: "222222"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code), "codes are single use")
}

func TestVerificationCodeExpires(t *testing.T) {
	svc, _, _, _ := newVerificationFixture()
	ctx := context.Background()
	_, err := svc.SendCode(ctx, models.SendCodeRequest{Email: "ada@example.com"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	err = svc.VerifyCode(ctx, models.VerifyCodeRequest{Email: "ada@example.com", Code: "111111"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestGenerateVerificationCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateVerificationCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
	}
}

type senderStub struct {
	sent []mailer.Message
	err  error
}

func (s *senderStub) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestMailWorker(t *testing.T) {
	sender := &senderStub{}
	metrics := NewMetricsService()
	worker := NewMailWorker(sender, metrics, nil)

	msg := mailer.Message{To: "ada@example.com", Subject: "hi", Text: "hello"}
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "1", Payload: msg}))
	assert.Len(t, sender.sent, 1)

	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "2", Payload: "not a message"}))

	sender.err = errors.New("smtp down")
	assert.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "3", Payload: msg}))

	worker.Outcome(jobs.Job{ID: "1"}, nil)
	worker.Outcome(jobs.Job{ID: "3", Attempt: 3}, errors.New("smtp down"))
}
