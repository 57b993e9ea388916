// Package notify emails the back office, and optionally the prospect,
// whenever a lead is submitted.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/settings"
)

// SMTPSource provides the current SMTP configuration with its password in
// clear. A nil config means mail is not configured.
type SMTPSource interface {
	SMTPForSending(ctx context.Context) (*settings.SMTPConfig, error)
}

// Recorder observes delivery outcomes.
type Recorder interface {
	RecordNotification(kind, status string)
}

// Options tunes a Dispatcher.
type Options struct {
	QueueSize   int
	SendTimeout time.Duration
	AckProspect bool
}

// Dispatcher queues new leads and sends their emails from a single
// background goroutine. It is safe for concurrent use.
type Dispatcher struct {
	smtp     SMTPSource
	mailer   Mailer
	recorder Recorder
	opts     Options

	queue    chan lead.Lead
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a Dispatcher. recorder may be nil.
func NewDispatcher(smtp SMTPSource, mailer Mailer, recorder Recorder, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		smtp:     smtp,
		mailer:   mailer,
		recorder: recorder,
		opts:     opts,
		queue:    make(chan lead.Lead, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue schedules notifications for l. It never blocks: when the queue is
// full the lead is dropped and logged.
func (d *Dispatcher) Enqueue(l lead.Lead) {
	select {
	case d.queue <- l:
	default:
		slog.Warn("notification queue full, dropping lead", "lead_id", l.ID)
		d.record("queue", "dropped")
	}
}

// Start processes queued leads until Stop is called or ctx is cancelled,
// then drains what is left. It blocks.
func (d *Dispatcher) Start(ctx context.Context) {
	for {
		select {
		case l := <-d.queue:
			d.process(l)
		case <-ctx.Done():
			d.drain()
			return
		case <-d.done:
			d.drain()
			return
		}
	}
}

// Stop signals Start to drain and return.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain() {
	for {
		select {
		case l := <-d.queue:
			d.process(l)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(l lead.Lead) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()

	cfg, err := d.smtp.SMTPForSending(ctx)
	if err != nil {
		slog.Error("loading smtp config", "lead_id", l.ID, "error", err)
		d.record("alert", "error")
		return
	}
	if !cfg.Complete() {
		slog.Debug("smtp not configured, skipping lead notification", "lead_id", l.ID)
		d.record("alert", "skipped")
		return
	}

	to := cfg.NotifyEmail
	if to == "" {
		to = cfg.FromEmail
	}
	if body, err := renderAlert(l); err != nil {
		slog.Error("rendering lead alert", "lead_id", l.ID, "error", err)
		d.record("alert", "error")
	} else {
		d.send(ctx, cfg, "alert", l.ID, Message{
			To:      to,
			ReplyTo: l.Email,
			Subject: "Nouveau prospect : " + l.FirstName + " " + l.LastName,
			HTML:    body,
		})
	}

	if !d.opts.AckProspect {
		return
	}
	sender := cfg.FromName
	if sender == "" {
		sender = cfg.FromEmail
	}
	body, err := renderAck(l, sender)
	if err != nil {
		slog.Error("rendering lead acknowledgement", "lead_id", l.ID, "error", err)
		d.record("ack", "error")
		return
	}
	d.send(ctx, cfg, "ack", l.ID, Message{
		To:      l.Email,
		Subject: "Nous avons bien reçu votre demande",
		HTML:    body,
	})
}

func (d *Dispatcher) send(ctx context.Context, cfg *settings.SMTPConfig, kind, leadID string, msg Message) {
	if err := d.mailer.Send(ctx, cfg, msg); err != nil {
		slog.Error("lead notification failed", "kind", kind, "lead_id", leadID, "error", err)
		d.record(kind, "error")
		return
	}
	slog.Info("lead notification sent", "kind", kind, "lead_id", leadID, "to", msg.To)
	d.record(kind, "sent")
}

func (d *Dispatcher) record(kind, status string) {
	if d.recorder != nil {
		d.recorder.RecordNotification(kind, status)
	}
}
