package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// SMSSender is the part of the Twilio REST client we use (twilio.RestClient.Api).
type SMSSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// EmailSender is satisfied by *sendgrid.Client.
type EmailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type StaffDirectory interface {
	GetContact(ctx context.Context, id string) (*models.StaffContact, error)
}

type MessagingConfig struct {
	OrganizationName string
	FromPhone        string
	FromEmail        string
	SandboxMode      bool
}

/*
MessagingChannel sends an SMS and an email to the target staff member.
Publish succeeds when at least one medium accepted the message.
*/
type MessagingChannel struct {
	cfg       MessagingConfig
	directory StaffDirectory
	sms       SMSSender
	email     EmailSender
}

func NewMessagingChannel(cfg MessagingConfig, directory StaffDirectory, sms SMSSender, email EmailSender) *MessagingChannel {
	return &MessagingChannel{cfg: cfg, directory: directory, sms: sms, email: email}
}

func (c *MessagingChannel) Publish(ctx context.Context, targetStaffID string, p Payload) error {
	contact, err := c.directory.GetContact(ctx, targetStaffID)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %v", ErrDeliveryFailed, targetStaffID, err)
	}

	subject, body := Render(p)
	log := utils.Logger.WithFields(logrus.Fields{
		"staff_id": targetStaffID,
		"job_id":   p.Event.JobID,
		"kind":     p.Event.Kind,
	})

	var errs []error
	sent := 0

	if contact.PhoneNumber != "" && c.sms != nil && c.cfg.FromPhone != "" {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(contact.PhoneNumber)
		params.SetFrom(c.cfg.FromPhone)
		params.SetBody(body)

		if _, smsErr := c.sms.CreateMessage(params); smsErr != nil {
			log.WithError(smsErr).Error("Failed to send job notification SMS via Twilio")
			errs = append(errs, fmt.Errorf("twilio: %w", smsErr))
		} else {
			sent++
		}
	}

	if contact.Email != "" && c.email != nil && c.cfg.FromEmail != "" {
		from := mail.NewEmail(c.cfg.OrganizationName, c.cfg.FromEmail)
		to := mail.NewEmail(contact.Name, contact.Email)
		message := mail.NewSingleEmail(from, c.cfg.OrganizationName+" - "+subject, to, body, "<p>"+body+"</p>")

		if c.cfg.SandboxMode {
			ms := mail.NewMailSettings()
			ms.SetSandboxMode(mail.NewSetting(true))
			message.MailSettings = ms
		}

		resp, sendErr := c.email.Send(message)
		if sendErr == nil && resp != nil && resp.StatusCode >= 400 {
			sendErr = fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
		}
		if sendErr != nil {
			log.WithError(sendErr).Error("Failed to send job notification email via SendGrid")
			errs = append(errs, fmt.Errorf("sendgrid: %w", sendErr))
		} else {
			sent++
		}
	}

	if sent > 0 {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: staff %s has no reachable contact", ErrDeliveryFailed, targetStaffID)
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, errors.Join(errs...))
}
