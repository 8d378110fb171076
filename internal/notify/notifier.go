// Package notify delivers operator alerts, such as a tenant left half
// provisioned, to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Alert is an operator-facing incident report.
type Alert struct {
	Summary string
	Fields  []Field
}

// Field is one labelled detail of an alert, rendered in order.
type Field struct {
	Label string
	Value string
}

// Sink delivers alerts to one channel.
type Sink interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans alerts out to every registered sink.
type Notifier struct {
	sinks *Registry
}

func New(sinks *Registry) *Notifier {
	return &Notifier{sinks: sinks}
}

// Alert sends a to every sink. With no sinks the alert is only logged. A
// failing sink does not stop the others; all failures are returned joined.
func (n *Notifier) Alert(ctx context.Context, a Alert) error {
	sinks := n.sinks.All()
	if len(sinks) == 0 {
		ev := log.Warn().Str("summary", a.Summary)
		for _, f := range a.Fields {
			ev = ev.Str(f.Label, f.Value)
		}
		ev.Msg("alert raised with no sinks configured")
		return nil
	}

	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify.Notifier.Alert: %w", errors.Join(errs...))
	}

	return nil
}
