package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/identity"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
)

type stubIdentity struct{}

func (stubIdentity) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	return identity.Session{AccessToken: "tok", User: identity.User{ID: "user-1", Email: email}}, nil
}

func (stubIdentity) Login(ctx context.Context, email, password string) (identity.Session, error) {
	return identity.Session{AccessToken: "tok", User: identity.User{ID: "user-1", Email: email}}, nil
}

func (stubIdentity) VerifyAccessToken(ctx context.Context, token string) (identity.User, error) {
	if token != "tok" {
		return identity.User{}, errors.New("bad token")
	}
	return identity.User{ID: "user-1", Email: "p@example.com"}, nil
}

func newTestServer(t *testing.T) (*Server, *ledger.MemStore, *auction.Manager) {
	t.Helper()
	store := ledger.NewMemStore()
	store.Seed(ledger.Ledger{
		UserID:        "user-1",
		BalanceMicros: 1_000 * ledger.MicrosPerCredit,
		Tier:          ledger.TierGuest,
	})
	r := market.NewRand(1)
	board := market.NewBoard(r, nil, nil)
	manager := auction.NewManager(store, r, nil)
	t.Cleanup(manager.Shutdown)
	t.Cleanup(board.Close)
	return New(nil, stubIdentity{}, store, catalog.Gallery(), board, manager), store, manager
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/gallery", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/gallery", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
}

func TestGalleryFilterAndSort(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/gallery?type=portrait&sort=price", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		Items []catalog.Item `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) == 0 {
		t.Fatalf("no portraits returned")
	}
	for i, it := range out.Items {
		if it.Type != catalog.TypePortrait {
			t.Fatalf("item %s is not a portrait", it.ID)
		}
		if i > 0 && it.BasePriceMicros < out.Items[i-1].BasePriceMicros {
			t.Fatalf("items not sorted by price at %d", i)
		}
	}
}

func TestGalleryItemDetail(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/gallery/item-5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		Item  catalog.Item  `json:"item"`
		Price market.Sample `json:"price"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Item.ID != "item-5" {
		t.Fatalf("item = %q, want item-5", out.Item.ID)
	}
	if out.Price.PriceMicros != out.Item.BasePriceMicros {
		t.Fatalf("untracked item quoted %d, want base %d", out.Price.PriceMicros, out.Item.BasePriceMicros)
	}
}

func TestGalleryItemNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/gallery/item-999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPriceFallsBackToBase(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/prices/item-5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var sample market.Sample
	if err := json.Unmarshal(rec.Body.Bytes(), &sample); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sample.PriceMicros != 100*ledger.MicrosPerCredit {
		t.Fatalf("price = %d, want base 100 credits", sample.PriceMicros)
	}
}

func TestPurchaseFlow(t *testing.T) {
	s, store, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/purchases", map[string]any{"item_id": "item-5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase status = %d: %s", rec.Code, rec.Body)
	}
	led, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if led.BalanceMicros != 900*ledger.MicrosPerCredit {
		t.Fatalf("balance = %d, want 900 credits", led.BalanceMicros)
	}
	if !led.Owns("item-5") {
		t.Fatalf("inventory missing item-5: %v", led.InventoryIDs)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/purchases", map[string]any{"item_id": "item-5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("repeat purchase status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/purchases", map[string]any{"item_id": "item-999"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown item status = %d, want 404", rec.Code)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.Seed(ledger.Ledger{UserID: "user-1", BalanceMicros: 10 * ledger.MicrosPerCredit})

	rec := doJSON(t, s, http.MethodPost, "/v1/purchases", map[string]any{"item_id": "item-5"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	led, _ := store.GetUser(context.Background(), "user-1")
	if led.BalanceMicros != 10*ledger.MicrosPerCredit || len(led.InventoryIDs) != 0 {
		t.Fatalf("failed purchase mutated ledger: %+v", led)
	}
}

func TestCreditAndTier(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/ledger/credit", map[string]any{
		"amount_micros": 500 * ledger.MicrosPerCredit,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("credit status = %d: %s", rec.Code, rec.Body)
	}
	var led ledger.Ledger
	if err := json.Unmarshal(rec.Body.Bytes(), &led); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if led.BalanceMicros != 1_500*ledger.MicrosPerCredit {
		t.Fatalf("balance = %d, want 1500 credits", led.BalanceMicros)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/ledger/tier", map[string]any{"tier": "artist"})
	if rec.Code != http.StatusOK {
		t.Fatalf("tier status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, s, http.MethodPost, "/v1/ledger/tier", map[string]any{"tier": "guest"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("downgrade status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/v1/ledger/tier", map[string]any{"tier": "collector"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown tier status = %d, want 400", rec.Code)
	}
}

func TestAuctionLifecycle(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/auctions", map[string]any{"item_id": "item-5"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open status = %d: %s", rec.Code, rec.Body)
	}
	var snap auction.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != auction.StatusActive || snap.CurrentBidMicros != 100*ledger.MicrosPerCredit {
		t.Fatalf("opening snapshot = %+v", snap)
	}

	rec = doJSON(t, s, http.MethodPost, "/v1/auctions", map[string]any{"item_id": "item-5"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second open status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", snap.SessionID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bid status = %d: %s", rec.Code, rec.Body)
	}
	var afterBid auction.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &afterBid); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if afterBid.CurrentBidMicros < snap.CurrentBidMicros+auction.UserIncrementMicros {
		t.Fatalf("bid did not raise: %d", afterBid.CurrentBidMicros)
	}

	rec = doJSON(t, s, http.MethodGet, "/v1/auctions/"+snap.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodDelete, "/v1/auctions/"+snap.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, s, http.MethodGet, "/v1/auctions/"+snap.SessionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("closed auction status = %d, want 404", rec.Code)
	}
}

func TestAuctionUnknownSession(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/auctions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSyncReplay(t *testing.T) {
	s, store, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/sync/replay", map[string]any{
		"commands": []map[string]any{
			{"kind": "credit", "amount_micros": 200 * ledger.MicrosPerCredit},
			{"kind": "purchase", "item_id": "item-5"},
			{"kind": "purchase", "item_id": "item-999"},
			{"kind": "teleport"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		Results []ReplayResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Results) != 4 {
		t.Fatalf("results = %d, want 4", len(out.Results))
	}
	if !out.Results[0].OK || !out.Results[1].OK {
		t.Fatalf("valid commands failed: %+v", out.Results)
	}
	if out.Results[2].OK || out.Results[3].OK {
		t.Fatalf("invalid commands succeeded: %+v", out.Results)
	}
	led, _ := store.GetUser(context.Background(), "user-1")
	if led.BalanceMicros != 1_100*ledger.MicrosPerCredit {
		t.Fatalf("balance = %d, want 1100 credits", led.BalanceMicros)
	}
}

// A client that never saw the replay response keeps its queue and re-sends
// it. Keyed commands must apply at most once across both syncs.
func TestSyncReplayAppliesEachKeyOnce(t *testing.T) {
	s, store, _ := newTestServer(t)

	commands := []map[string]any{
		{"id": "key-credit-1", "kind": "credit", "amount_micros": 200 * ledger.MicrosPerCredit},
		{"id": "key-buy-1", "kind": "purchase", "item_id": "item-7"},
	}

	for attempt := 0; attempt < 2; attempt++ {
		rec := doJSON(t, s, http.MethodPost, "/v1/sync/replay", map[string]any{"commands": commands})
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d: %s", attempt, rec.Code, rec.Body)
		}
		var out struct {
			Results []ReplayResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, res := range out.Results {
			if !res.OK {
				t.Fatalf("attempt %d: command %s not applied: %s", attempt, res.ID, res.Error)
			}
		}
	}

	led, _ := store.GetUser(context.Background(), "user-1")
	if led.BalanceMicros != 1_110*ledger.MicrosPerCredit {
		t.Fatalf("balance = %d, want 1110 credits after one credit and one purchase", led.BalanceMicros)
	}
	if !led.Owns("item-7") {
		t.Fatalf("inventory missing item-7: %v", led.InventoryIDs)
	}
}

// A failed command must not claim its key, or a later retry with more funds
// would be skipped as a duplicate.
func TestSyncReplayFailureKeepsKeyRetriable(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.Seed(ledger.Ledger{
		UserID:        "user-1",
		BalanceMicros: 10 * ledger.MicrosPerCredit,
		Tier:          ledger.TierGuest,
	})

	buy := map[string]any{"id": "key-buy-retry", "kind": "purchase", "item_id": "item-7"}
	rec := doJSON(t, s, http.MethodPost, "/v1/sync/replay", map[string]any{"commands": []map[string]any{buy}})
	var out struct {
		Results []ReplayResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Results[0].OK {
		t.Fatalf("purchase with 10 credits should fail: %+v", out.Results[0])
	}

	if _, err := store.Credit(context.Background(), "user-1", 200*ledger.MicrosPerCredit); err != nil {
		t.Fatalf("credit: %v", err)
	}
	rec = doJSON(t, s, http.MethodPost, "/v1/sync/replay", map[string]any{"commands": []map[string]any{buy}})
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Results[0].OK {
		t.Fatalf("funded retry rejected: %+v", out.Results[0])
	}
	led, _ := store.GetUser(context.Background(), "user-1")
	if !led.Owns("item-7") {
		t.Fatalf("inventory missing item-7 after retry: %v", led.InventoryIDs)
	}
}
