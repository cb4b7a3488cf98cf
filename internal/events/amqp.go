package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"

	"github.com/hongminglow/userhub/internal/logging"
)

const (
	publishTimeout = 5 * time.Second
	connectRetries = 5
	retryBase      = time.Second
	retryCap       = 30 * time.Second
)

// ErrPublisherUnavailable is returned while the broker connection is down.
var ErrPublisherUnavailable = errors.New("rabbitmq channel not available")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// session is one live connection with its publishing channel. lost fires
// when the broker drops the connection.
type session struct {
	ch   channel
	conn io.Closer
	lost <-chan *amqp.Error
}

type opener func() (session, error)

// AMQPPublisher publishes events as persistent JSON messages to a topic exchange.
// The routing key is the event type. A dropped connection is re-dialled in the
// background; publishes fail fast with ErrPublisherUnavailable meanwhile.
type AMQPPublisher struct {
	exchange  string
	open      opener
	log       logging.Logger
	reconnect func() retry.Backoff

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	ch     channel
	conn   io.Closer
	closed bool
}

// NewAMQPPublisher dials url, retrying with exponential backoff, and declares
// a durable topic exchange.
func NewAMQPPublisher(ctx context.Context, url, exchange string, log logging.Logger) (*AMQPPublisher, error) {
	open := func() (session, error) { return dialSession(url, exchange) }
	startup := retry.WithMaxRetries(connectRetries, retry.WithCappedDuration(retryCap, retry.NewExponential(retryBase)))
	reconnect := func() retry.Backoff {
		return retry.WithCappedDuration(retryCap, retry.NewExponential(retryBase))
	}
	return newAMQPPublisher(ctx, exchange, open, startup, reconnect, log)
}

func newAMQPPublisher(ctx context.Context, exchange string, open opener, startup retry.Backoff, reconnect func() retry.Backoff, log logging.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = logging.Nop()
	}
	p := &AMQPPublisher{
		exchange:  exchange,
		open:      open,
		log:       log.With("component", "events"),
		reconnect: reconnect,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	sess, err := p.connect(ctx, startup)
	if err != nil {
		p.cancel()
		return nil, err
	}
	go p.watch(sess.lost)
	return p, nil
}

func dialSession(url, exchange string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return session{}, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return session{}, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return session{}, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return session{ch: ch, conn: conn, lost: conn.NotifyClose(make(chan *amqp.Error, 1))}, nil
}

// connect opens a session under backoff and installs it.
func (p *AMQPPublisher) connect(ctx context.Context, b retry.Backoff) (session, error) {
	attempt := 0
	sess, err := retry.DoValue(ctx, b, func(ctx context.Context) (session, error) {
		attempt++
		s, err := p.open()
		if err != nil {
			p.log.Warn(ctx, "rabbitmq connect attempt failed", "attempt", attempt, "error", err)
			return session{}, retry.RetryableError(err)
		}
		return s, nil
	})
	if err != nil {
		return session{}, fmt.Errorf("connect rabbitmq after %d attempts: %w", attempt, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		closeSession(sess)
		return session{}, errors.New("publisher closed")
	}
	p.ch, p.conn = sess.ch, sess.conn
	p.mu.Unlock()

	p.log.Info(ctx, "rabbitmq connected", "exchange", p.exchange, "attempt", attempt)
	return sess, nil
}

// watch re-dials whenever the live session is lost, until Close.
func (p *AMQPPublisher) watch(lost <-chan *amqp.Error) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case reason := <-lost:
			if p.ctx.Err() != nil {
				return
			}
			p.log.Warn(p.ctx, "rabbitmq connection lost", "reason", reason)

			p.mu.Lock()
			p.ch, p.conn = nil, nil
			p.mu.Unlock()

			sess, err := p.connect(p.ctx, p.reconnect())
			if err != nil {
				return
			}
			lost = sess.lost
		}
	}
}

// Publish sends evt with the exchange's routing key set to evt.Type. The lock
// only guards the channel swap; concurrent publishes run in parallel.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	ch, closed := p.ch, p.closed
	p.mu.RUnlock()
	if closed {
		return errors.New("publisher closed")
	}
	if ch == nil {
		return ErrPublisherUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(publishCtx, p.exchange, evt.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID.String(),
		Timestamp:    evt.OccurredAt,
		Type:         evt.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close stops reconnecting and shuts the channel and connection. It is safe
// to call more than once.
func (p *AMQPPublisher) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := closeSession(session{ch: p.ch, conn: p.conn})
	p.ch, p.conn = nil, nil
	return err
}

func closeSession(s session) error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
