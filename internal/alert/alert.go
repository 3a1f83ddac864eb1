// Package alert publishes vault risk alerts raised by the health scan.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vaultkit/vault-engine/internal/model"
)

// SubjectPrefix is prepended to the lower-cased collateral token:
// vaults.alerts.stx, vaults.alerts.xbtc.
const SubjectPrefix = "vaults.alerts."

// Publisher delivers vault alerts.
type Publisher interface {
	Publish(ctx context.Context, a model.VaultAlert) error
	Close()
}

// Subject returns the NATS subject for alerts on a collateral token.
func Subject(token string) string {
	return SubjectPrefix + strings.ToLower(strings.TrimSpace(token))
}

// NATSPublisher publishes alerts as JSON on NATS.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, a model.VaultAlert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(Subject(a.CollateralToken), data); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// LogPublisher writes alerts to a structured logger. Used when NATS is not
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher logging to logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, a model.VaultAlert) error {
	p.logger.WarnContext(ctx, "vault alert",
		"alert_id", a.ID,
		"vault_id", a.VaultID,
		"owner", a.Owner,
		"token", a.CollateralToken,
		"health", a.Health,
		"ratio_percent", a.RatioPercent.String(),
		"liquidation_ratio", a.LiquidationRatio.String(),
		"price_micro_usd", a.PriceMicroUsd,
	)
	return nil
}

func (p *LogPublisher) Close() {}
