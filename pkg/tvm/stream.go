package tvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/network"
	"github.com/chainsafe/bridge-tracker/pkg/subscription"
)

var (
	// ErrNotDeployed is returned when a getter targets an account without code.
	ErrNotDeployed = errors.New("contract not deployed")
	// ErrNoStream is returned by SubscribeTransactions when no NATS feed is configured.
	ErrNoStream = errors.New("tvm transaction stream not configured")
)

const transactionBuffer = 64

// Stream is the NATS feed of account transactions published by the TVM gateways.
// Subjects are "<prefix>.<chainId>.<address>".
type Stream struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewStream connects to the NATS server. The connection reconnects forever.
func NewStream(cfg config.NATSConfig, logger *zap.Logger) (*Stream, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("bridge-tracker"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	logger.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()))

	return &Stream{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Close drains the connection.
func (s *Stream) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("Failed to drain NATS connection", zap.Error(err))
	}
	metrics.NATSConnectionStatus.Set(0)
}

// Subject returns the subject transactions of address on ref are published to.
func (s *Stream) Subject(ref network.ChainRef, address string) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, ref.ChainID(), address)
}

// Subscribe streams new transactions of address on ref.
func (s *Stream) Subscribe(ctx context.Context, ref network.ChainRef, address string) (subscription.Subscription[Transaction], error) {
	subject := s.Subject(ref, address)
	gauge := metrics.SubscriptionsActive.WithLabelValues(ref.String())

	var sub *nats.Subscription
	stream := subscription.NewStream[Transaction](transactionBuffer, func() error {
		gauge.Dec()
		if sub == nil {
			return nil
		}
		return sub.Unsubscribe()
	})

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		tx, err := decodeTransaction(msg.Data)
		if err != nil {
			s.logger.Warn("Dropping undecodable transaction",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("tvm_stream", "decode").Inc()
			return
		}
		stream.Send(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	gauge.Inc()

	s.logger.Debug("Subscribed to TVM transactions", zap.String("subject", subject))
	return stream, nil
}

func decodeTransaction(data []byte) (Transaction, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Transaction{}, err
	}
	var tx Transaction
	if err := Decode(raw, &tx); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
