package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/engine"
	"github.com/jwolabs/vaultwatch/internal/observ"
)

// Snapshot is one successful read of an entity's open positions.
type Snapshot struct {
	Holdings        map[string]engine.Holding
	AccountValue    decimal.Decimal
	HasAccountValue bool
	FetchedAt       time.Time
}

// Client fetches position state from the venue's info endpoint.
type Client struct {
	http *resty.Client
	log  *logrus.Entry
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	httpc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{
		http: httpc,
		log:  logrus.WithField("component", "venue"),
	}
}

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type clearinghouseState struct {
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           string `json:"szi"`
			EntryPx       string `json:"entryPx"`
			PositionValue string `json:"positionValue"`
		} `json:"position"`
	} `json:"assetPositions"`
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
}

// Positions fetches the current open positions for an address. Rows the
// venue returns malformed are skipped individually so one bad position
// does not fail the whole read.
func (c *Client) Positions(ctx context.Context, address string) (Snapshot, error) {
	var state clearinghouseState
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(infoRequest{Type: "clearinghouseState", User: address}).
		SetResult(&state).
		Post("/info")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch positions for %s: %w", address, err)
	}
	if resp.IsError() {
		return Snapshot{}, fmt.Errorf("fetch positions for %s: status %d", address, resp.StatusCode())
	}

	now := time.Now()
	snap := Snapshot{
		Holdings:  make(map[string]engine.Holding, len(state.AssetPositions)),
		FetchedAt: now,
	}

	for _, ap := range state.AssetPositions {
		pos := ap.Position
		if pos.Coin == "" {
			c.skipRow(address, "missing coin")
			continue
		}
		size, err := decimal.NewFromString(pos.Szi)
		if err != nil {
			c.skipRow(address, fmt.Sprintf("bad size %q for %s", pos.Szi, pos.Coin))
			continue
		}
		entry := decimal.Zero
		if pos.EntryPx != "" {
			if entry, err = decimal.NewFromString(pos.EntryPx); err != nil {
				c.skipRow(address, fmt.Sprintf("bad entry price %q for %s", pos.EntryPx, pos.Coin))
				continue
			}
		}
		value := decimal.Zero
		if pos.PositionValue != "" {
			if value, err = decimal.NewFromString(pos.PositionValue); err != nil {
				c.skipRow(address, fmt.Sprintf("bad position value %q for %s", pos.PositionValue, pos.Coin))
				continue
			}
		}
		snap.Holdings[pos.Coin] = engine.Holding{
			Symbol:     pos.Coin,
			Size:       size,
			EntryPrice: entry,
			ValueUSD:   value,
			ObservedAt: now,
		}
	}

	if av := state.MarginSummary.AccountValue; av != "" {
		if value, err := decimal.NewFromString(av); err == nil {
			snap.AccountValue = value
			snap.HasAccountValue = true
		}
	}

	return snap, nil
}

func (c *Client) skipRow(address, reason string) {
	observ.IncCounter("venue_malformed_rows_total", nil)
	c.log.WithFields(logrus.Fields{
		"address": address,
		"reason":  reason,
	}).Warn("skipping malformed position row")
}
