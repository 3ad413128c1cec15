// Package delivery sends one-time codes over out-of-band channels.
//
// Email goes out inline over SMTP with a short retry budget. SMS and WhatsApp
// are handed to the message broker, where the provider gateway consumes them.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stepauth/stepauth/internal/auth/entity"
	"github.com/stepauth/stepauth/internal/auth/usecase"
	"github.com/stepauth/stepauth/internal/pkg/instrument"
	"github.com/stepauth/stepauth/internal/pkg/mail"
	"github.com/stepauth/stepauth/internal/pkg/messaging"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const keyOfCorrelationID string = "cID"

// OtpCodeDestination is the broker destination for non-email code deliveries.
const OtpCodeDestination = "auth.otp-code-delivery"

// OtpCodeMessage is the broker payload for a code sent over SMS or WhatsApp.
type OtpCodeMessage struct {
	Subject    string `json:"subject"`
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
	Code       string `json:"code"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// Sender implements the usecase delivery boundary.
type Sender struct {
	mailer mail.Mail
	broker messaging.Messaging
	from   string
	ins    instrument.Instrumentation
}

// NewSender builds a Sender. from is the email sender address.
func NewSender(mailer mail.Mail, broker messaging.Messaging, from string, ins instrument.Instrumentation) *Sender {
	return &Sender{
		mailer: mailer,
		broker: broker,
		from:   from,
		ins:    ins,
	}
}

func (s *Sender) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("auth.outbound.delivery").Start(ctx, name)
}

// SendOtpCode dispatches the code over the channel chosen at login.
func (s *Sender) SendOtpCode(ctx context.Context, msg usecase.OtpCodeDelivery) error {
	ctx, span := s.startSpan(ctx, "SendOtpCode")
	defer span.End()

	var err error
	switch msg.Channel {
	case entity.ChannelEmail:
		err = s.sendEmail(ctx, msg)
	case entity.ChannelSMS, entity.ChannelWhatsApp:
		err = s.publish(ctx, msg)
	default:
		err = fmt.Errorf("delivery: unsupported channel %q", msg.Channel)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (s *Sender) sendEmail(ctx context.Context, msg usecase.OtpCodeDelivery) error {
	minutes := int(msg.TTL.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	m := mail.Message{
		From:     s.from,
		To:       []string{msg.Identifier},
		Subject:  "Your verification code",
		TextBody: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", msg.Code, minutes),
	}

	// SMTP hiccups are common enough to be worth a couple of quick retries,
	// but the code expires soon so the budget stays small.
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.mailer.Send(ctx, m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Sender) publish(ctx context.Context, msg usecase.OtpCodeDelivery) error {
	body, err := json.Marshal(OtpCodeMessage{
		Subject:    msg.Subject,
		Identifier: msg.Identifier,
		Channel:    msg.Channel.String(),
		Code:       msg.Code,
		TTLSeconds: int64(msg.TTL / time.Second),
	})
	if err != nil {
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	_, err = s.broker.Publish(ctx, OtpCodeDestination, messaging.OutgoingMessage{
		Body:    body,
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	})

	return err
}
