// Package notifier delivers one-time codes out of band (email or SMS).
// The auth core only observes success or failure, never the transport.
package notifier

import (
	"context"
	"fmt"

	userdomain "auth-service/internal/user/domain"
)

// Notifier delivers an OTP code to the identifier over the given channel.
type Notifier interface {
	// SendOTP sends code to recipient (an email address or phone number,
	// matching channel). Implementations must not log the code.
	SendOTP(ctx context.Context, channel userdomain.Channel, recipient, code, purpose string) error
}

// OTPSender sends an OTP to a single-channel recipient.
type OTPSender interface {
	SendOTP(ctx context.Context, recipient, code, purpose string) error
}

// Dispatcher routes SendOTP to the channel-appropriate sender.
type Dispatcher struct {
	Email OTPSender
	SMS   OTPSender
}

// NewDispatcher returns a Dispatcher delivering email via email and phone via sms.
func NewDispatcher(email, sms OTPSender) *Dispatcher {
	return &Dispatcher{Email: email, SMS: sms}
}

// SendOTP delivers code over the given channel. Returns an error when the
// channel is unknown or its sender is not configured.
func (d *Dispatcher) SendOTP(ctx context.Context, channel userdomain.Channel, recipient, code, purpose string) error {
	switch channel {
	case userdomain.ChannelEmail:
		if d.Email == nil {
			return fmt.Errorf("notifier: email sender not configured")
		}
		return d.Email.SendOTP(ctx, recipient, code, purpose)
	case userdomain.ChannelPhone:
		if d.SMS == nil {
			return fmt.Errorf("notifier: sms sender not configured")
		}
		return d.SMS.SendOTP(ctx, recipient, code, purpose)
	default:
		return fmt.Errorf("notifier: unknown channel %q", channel)
	}
}
