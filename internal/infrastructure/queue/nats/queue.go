package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const defaultQueueGroup = "retrievers"

// RetrieveFunc answers one retrieval request received over the bus.
type RetrieveFunc func(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error)

type Queue struct {
	conn           *nats.Conn
	subject        string
	queueGroup     string
	requestTimeout time.Duration
	handlerTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	RequestTimeout       time.Duration
	HandlerTimeout       time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("medical-evidence-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, subject, options, logger), nil
}

func newQueue(conn *nats.Conn, subject string, options Options, logger *slog.Logger) *Queue {
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	handlerTimeout := options.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = requestTimeout
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		queueGroup:     group,
		requestTimeout: requestTimeout,
		handlerTimeout: handlerTimeout,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ready reports whether the connection to the server is usable.
func (q *Queue) Ready(_ context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return domain.WrapError(domain.ErrTemporary, "nats ready", nats.ErrDisconnected)
	}
	return nil
}

// Search sends a retrieval request and waits for a worker's reply.
func (q *Queue) Search(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResult, error) {
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	msg, err := resilience.Call(ctx, q.executor, "nats.request", func(ctx context.Context) (*nats.Msg, error) {
		reqCtx, cancel := context.WithTimeout(ctx, q.requestTimeout)
		defer cancel()
		msg, err := q.conn.RequestWithContext(reqCtx, q.subject, payload)
		if err != nil {
			return nil, fmt.Errorf("nats request: %w", err)
		}
		return msg, nil
	}, classifyNATSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats request", err)
	}
	return decodeReply(msg.Data)
}

// ServeRetrieval answers requests on the subject until ctx is cancelled,
// then drains the subscription.
func (q *Queue) ServeRetrieval(ctx context.Context, retrieve RetrieveFunc) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithTimeout(ctx, q.handlerTimeout)
		defer cancel()
		reply := handleRequest(handlerCtx, msg.Data, retrieve, q.logger)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			q.logger.Error("nats_reply_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
