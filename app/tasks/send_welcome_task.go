package tasks

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

type SendWelcomeTask struct {
	Task
	email  string
	doc    newsletter.Document
	sender WelcomeSender
}

func NewSendWelcomeTask(email string, doc newsletter.Document, sender WelcomeSender) *SendWelcomeTask {
	return &SendWelcomeTask{
		Task:   NewTask(TaskTypeSendWelcome, email),
		email:  email,
		doc:    doc,
		sender: sender,
	}
}

func (t *SendWelcomeTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	messageID, err := t.sender.SendSingle(ctx, t.doc, t.email)
	if err != nil {
		return errors.Wrapf(err, "failed to send welcome email to %s", t.email)
	}

	slog.Info("Task completed",
		"type", "SendWelcome",
		"email", t.email,
		"message_id", messageID,
		"duration", t.GetDuration())

	return nil
}
