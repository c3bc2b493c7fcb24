package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/identity"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/syncq"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password string) (identity.Session, error) {
	var out identity.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (identity.Session, error) {
	var out identity.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Gallery(ctx context.Context, accessToken, artType, rarity, sort string) ([]catalog.Item, error) {
	q := url.Values{}
	if artType != "" {
		q.Set("type", artType)
	}
	if rarity != "" {
		q.Set("rarity", rarity)
	}
	if sort != "" {
		q.Set("sort", sort)
	}
	path := "/v1/gallery"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items []catalog.Item `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out)
	return out.Items, err
}

type ItemDetail struct {
	Item  catalog.Item  `json:"item"`
	Price market.Sample `json:"price"`
}

func (c *Client) Item(ctx context.Context, accessToken, itemID string) (ItemDetail, error) {
	var out ItemDetail
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/gallery/"+url.PathEscape(itemID), accessToken, nil, &out)
	return out, err
}

func (c *Client) Price(ctx context.Context, accessToken, itemID string) (market.Sample, error) {
	var out market.Sample
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/prices/"+url.PathEscape(itemID), accessToken, nil, &out)
	return out, err
}

func (c *Client) Ledger(ctx context.Context, accessToken string) (ledger.Ledger, error) {
	var out ledger.Ledger
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/ledger", accessToken, nil, &out)
	return out, err
}

func (c *Client) Credit(ctx context.Context, accessToken string, amountMicros int64, source string) (ledger.Ledger, error) {
	var out ledger.Ledger
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ledger/credit", accessToken, map[string]any{
		"amount_micros": amountMicros,
		"source":        source,
	}, &out)
	return out, err
}

func (c *Client) UpgradeTier(ctx context.Context, accessToken, tier string) (ledger.Ledger, error) {
	var out ledger.Ledger
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/ledger/tier", accessToken, map[string]any{
		"tier": tier,
	}, &out)
	return out, err
}

type PurchaseResult struct {
	Ledger      ledger.Ledger `json:"ledger"`
	ItemID      string        `json:"item_id"`
	PriceMicros int64         `json:"price_micros"`
}

func (c *Client) Buy(ctx context.Context, accessToken, itemID string) (PurchaseResult, error) {
	var out PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/purchases", accessToken, map[string]any{
		"item_id": itemID,
	}, &out)
	return out, err
}

func (c *Client) AuctionOpen(ctx context.Context, accessToken, itemID string) (auction.Snapshot, error) {
	var out auction.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auctions", accessToken, map[string]any{
		"item_id": itemID,
	}, &out)
	return out, err
}

func (c *Client) AuctionStatus(ctx context.Context, accessToken, sessionID string) (auction.Snapshot, error) {
	var out auction.Snapshot
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/auctions/"+url.PathEscape(sessionID), accessToken, nil, &out)
	return out, err
}

func (c *Client) AuctionBid(ctx context.Context, accessToken, sessionID string) (auction.Snapshot, error) {
	var out auction.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auctions/"+url.PathEscape(sessionID)+"/bids", accessToken, nil, &out)
	return out, err
}

func (c *Client) AuctionClose(ctx context.Context, accessToken, sessionID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/auctions/"+url.PathEscape(sessionID), accessToken, nil, nil)
}

// FeedURL is the WebSocket endpoint for an auction session.
func (c *Client) FeedURL(sessionID string) string {
	base := strings.Replace(c.BaseURL, "http", "ws", 1)
	return base + "/v1/auctions/" + url.PathEscape(sessionID) + "/feed"
}

type ReplayResult struct {
	ID    string `json:"id,omitempty"`
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (c *Client) SyncReplay(ctx context.Context, accessToken string, commands []syncq.Command) ([]ReplayResult, error) {
	var out struct {
		Results []ReplayResult `json:"results"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sync/replay", accessToken, map[string]any{
		"commands": commands,
	}, &out)
	return out.Results, err
}

// RemainingAfterReplay filters the queue down to entries the server did not
// apply. Results match queue entries by replay key, falling back to position
// for entries written before keys were assigned.
func RemainingAfterReplay(queue []syncq.Command, results []ReplayResult) []syncq.Command {
	okByID := make(map[string]bool, len(results))
	for _, res := range results {
		if res.ID != "" && res.OK {
			okByID[res.ID] = true
		}
	}
	remaining := make([]syncq.Command, 0, len(queue))
	for i, cmd := range queue {
		if cmd.ID != "" {
			if okByID[cmd.ID] {
				continue
			}
		} else if i < len(results) && results[i].OK {
			continue
		}
		remaining = append(remaining, cmd)
	}
	return remaining
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
