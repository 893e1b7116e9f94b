// Package httpapi implements the external statistics, launchpad-classifier,
// spot-price, and notifier HTTP collaborators as thin JSON clients sharing
// one *http.Client.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// Clients bundles the four external HTTP collaborators behind one
// *http.Client, built once in New. The service builds a single Clients, so
// every dispatch worker, the filter engine and the metadata resolver share
// that one client; workers do not own clients of their own.
type Clients struct {
	httpClient  *http.Client
	statsBase   string
	launchpad   string
	spotBase    string
	notifierURL string
}

// New builds the client bundle from the four base URLs.
func New(statsBase, launchpadBase, spotBase, notifierURL string) *Clients {
	return &Clients{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		statsBase:   statsBase,
		launchpad:   launchpadBase,
		spotBase:    spotBase,
		notifierURL: notifierURL,
	}
}

var (
	_ repository.StatsAPI     = (*Clients)(nil)
	_ repository.LaunchpadAPI = (*Clients)(nil)
	_ repository.SpotPriceAPI = (*Clients)(nil)
	_ repository.Notifier     = (*Clients)(nil)
)

type statResponse struct {
	PriceChange  float64 `json:"priceChange"`
	Volume       float64 `json:"volume"`
	Txs          int     `json:"txs"`
	Top10        float64 `json:"top10"`
	Completeness string  `json:"completeness"`
}

// GetStat implements repository.StatsAPI: GET /pair/{addr}?interval={w}.
func (c *Clients) GetStat(ctx context.Context, pair string, w model.Window) (*model.PriceStat, error) {
	u := fmt.Sprintf("%s/pair/%s?interval=%s", c.statsBase, url.PathEscape(pair), url.QueryEscape(string(w)))
	var resp statResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	completeness := model.Completeness(resp.Completeness)
	if completeness == "" {
		completeness = model.CompletenessComplete
	}
	return &model.PriceStat{
		Token:        pair,
		Window:       w,
		PriceChange:  resp.PriceChange,
		Volume:       resp.Volume,
		TxCount:      resp.Txs,
		Top10Pct:     resp.Top10,
		Completeness: completeness,
		UpdatedAt:    time.Now(),
	}, nil
}

type launchpadResponse struct {
	IsFourmeme bool `json:"is_fourmeme"`
}

// IsFourmeme implements repository.LaunchpadAPI: GET /launchpad/{token}.
func (c *Clients) IsFourmeme(ctx context.Context, token string) (bool, error) {
	u := fmt.Sprintf("%s/launchpad/%s", c.launchpad, url.PathEscape(token))
	var resp launchpadResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return false, err
	}
	return resp.IsFourmeme, nil
}

type spotResponse struct {
	Last string `json:"last"`
}

// WBNBPrice implements repository.SpotPriceAPI: GET /spot/tickers?currency_pair=BNB_USDT.
func (c *Clients) WBNBPrice(ctx context.Context) (float64, error) {
	u := fmt.Sprintf("%s/spot/tickers?currency_pair=BNB_USDT", c.spotBase)
	var resp spotResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Last, 64)
	if err != nil {
		return 0, &model.DecodeError{Reason: "malformed spot price: " + err.Error()}
	}
	return price, nil
}

type notifyRequest struct {
	ChatID  string   `json:"chat_id"`
	Text    string   `json:"text"`
	Buttons []string `json:"buttons,omitempty"`
}

// Send implements repository.Notifier: POST /send.
func (c *Clients) Send(ctx context.Context, alert *model.Alert) error {
	body, err := json.Marshal(notifyRequest{
		ChatID: alert.Token,
		Text:   formatAlertText(alert),
	})
	if err != nil {
		return &model.DispatchError{Token: alert.Token, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.notifierURL, bytes.NewReader(body))
	if err != nil {
		return &model.DispatchError{Token: alert.Token, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.DispatchError{Token: alert.Token, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.DispatchError{Token: alert.Token, Err: fmt.Errorf("notifier returned status %d", resp.StatusCode)}
	}
	return nil
}

func formatAlertText(a *model.Alert) string {
	return fmt.Sprintf("%s $%.2f via %s: %v", a.Token, a.USDValue, a.Pair, a.Reasons)
}

func (c *Clients) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.TransientError{Op: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &model.TransientError{Op: u, StatusCode: 429}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
