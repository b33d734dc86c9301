// Package reminder periodically checks the next pending repayment and
// e-mails the account owner when it is close or overdue.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/plutus/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RepaymentSource yields the next pending repayment, or nil
type RepaymentSource interface {
	NextDueRepayment(ctx context.Context) (*models.Repayment, error)
}

// Notifier delivers a reminder
type Notifier interface {
	SendPaymentReminder(to, username string, dueDate time.Time, amount decimal.Decimal, isOverdue bool) error
}

// Authorizer returns a context allowed to read confidential state
type Authorizer func(ctx context.Context) (context.Context, error)

// Job is one reminder check
type Job struct {
	source    RepaymentSource
	notifier  Notifier
	authorize Authorizer
	to        string
	name      string
	window    time.Duration
	now       func() time.Time
	log       *logrus.Logger
}

// NewJob creates a reminder check for one recipient
func NewJob(source RepaymentSource, notifier Notifier, authorize Authorizer, to, name string, window time.Duration, log *logrus.Logger) *Job {
	return &Job{
		source:    source,
		notifier:  notifier,
		authorize: authorize,
		to:        to,
		name:      name,
		window:    window,
		now:       time.Now,
		log:       log,
	}
}

// Run checks the next repayment and sends a reminder when it is due within
// the window or already overdue. It reports whether a reminder was sent.
func (j *Job) Run(ctx context.Context) (bool, error) {
	ctx, err := j.authorize(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to authorize reminder job: %w", err)
	}

	next, err := j.source.NextDueRepayment(ctx)
	if err != nil {
		return false, err
	}
	if next == nil {
		j.log.Debug("No repayments due")
		return false, nil
	}

	// Compare in unsigned seconds so due dates past the int64 range stay in
	// the future instead of wrapping negative.
	now := j.now()
	var nowSec uint64
	if now.Unix() > 0 {
		nowSec = uint64(now.Unix())
	}
	if next.DueDate > nowSec && next.DueDate-nowSec > uint64(j.window/time.Second) {
		return false, nil
	}
	due := time.Unix(int64(next.DueDate), 0)

	if err := j.notifier.SendPaymentReminder(j.to, j.name, due, next.AmountDue, now.After(due)); err != nil {
		return false, err
	}
	return true, nil
}

// Scheduler runs a Job on a cron schedule
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

// NewScheduler registers job under spec (standard cron syntax or descriptors like @daily)
func NewScheduler(spec string, job *Job, log *logrus.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		sent, err := job.Run(context.Background())
		if err != nil {
			log.Errorf("Repayment reminder failed: %v", err)
			return
		}
		if sent {
			log.Info("Repayment reminder sent")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running the schedule in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Repayment reminder scheduler started")
}

// Stop halts the schedule and waits for a running check to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
