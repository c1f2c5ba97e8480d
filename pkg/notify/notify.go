// Package notify delivers user-facing messages over email and SMS.
package notify

import (
	"context"
	"errors"
)

// Recipient identifies where a message goes. Empty channels are skipped.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Message is a rendered notification.
type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Sender delivers a message over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// Fanout delivers to every sender and joins their failures.
type Fanout []Sender

// Channel implements Sender.
func (f Fanout) Channel() string { return "fanout" }

// Send implements Sender.
func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, sender := range f {
		if sender == nil {
			continue
		}
		if err := sender.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
