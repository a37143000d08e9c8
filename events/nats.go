package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher sends events to a subject every API instance listens on.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	msg := &nats.Msg{
		Subject: p.subject,
		Header:  nats.Header{},
		Data:    data,
	}
	msg.Header.Set("Event-Type", string(ev.Type))
	return p.nc.PublishMsg(msg)
}

// NATSBridge feeds events received on the subject into the local hub.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	b       Broadcaster
	log     *zap.Logger
	sub     *nats.Subscription
}

func NewNATSBridge(nc *nats.Conn, subject string, b Broadcaster, log *zap.Logger) *NATSBridge {
	return &NATSBridge{nc: nc, subject: subject, b: b, log: log.Named("nats")}
}

func (br *NATSBridge) Start() error {
	sub, err := br.nc.Subscribe(br.subject, br.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", br.subject, err)
	}
	br.sub = sub
	br.log.Info("listening for order events", zap.String("subject", br.subject))
	return nil
}

func (br *NATSBridge) handle(msg *nats.Msg) {
	ev, err := Decode(msg.Data)
	if err != nil {
		br.log.Error("failed to decode order event", zap.Error(err))
		return
	}
	br.b.Broadcast(ev)
}

func (br *NATSBridge) Stop() error {
	if br.sub == nil {
		return nil
	}
	return br.sub.Unsubscribe()
}

// Connect dials NATS with reconnects logged through zap.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("canteen-runner-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}
