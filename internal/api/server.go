package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/identity"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

// Identity is the slice of the account service the server needs. Tests
// substitute a stub so no network is involved.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (identity.Session, error)
	Login(ctx context.Context, email, password string) (identity.Session, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (identity.User, error)
}

// UserStore is the ledger store plus first-login provisioning and the replay
// journal the offline sync endpoint dedups against.
type UserStore interface {
	ledger.Store
	EnsureUser(ctx context.Context, userID string) error
	SeenReplay(ctx context.Context, userID, key string) (bool, error)
	MarkReplay(ctx context.Context, userID, key string) error
}

type Server struct {
	log      *slog.Logger
	identity Identity
	store    UserStore
	gallery  []catalog.Item
	board    *market.Board
	auctions *auction.Manager
	mux      *chi.Mux
}

func New(logger *slog.Logger, id Identity, store UserStore, gallery []catalog.Item, board *market.Board, auctions *auction.Manager) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:      logger,
		identity: id,
		store:    store,
		gallery:  gallery,
		board:    board,
		auctions: auctions,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/gallery", s.handleGallery)
			r.Get("/gallery/{id}", s.handleGalleryItem)
			r.Get("/prices/{id}", s.handlePrice)

			r.Get("/ledger", s.handleLedger)
			r.Post("/ledger/credit", s.handleCredit)
			r.Post("/ledger/tier", s.handleTierUpgrade)
			r.Post("/purchases", s.handlePurchase)

			r.Post("/auctions", s.handleAuctionOpen)
			r.Get("/auctions/{id}", s.handleAuctionStatus)
			r.Post("/auctions/{id}/bids", s.handleAuctionBid)
			r.Delete("/auctions/{id}", s.handleAuctionClose)
			r.Get("/auctions/{id}/feed", s.handleAuctionFeed)

			r.Post("/sync/replay", s.handleSyncReplay)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.identity.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.identity.SignUp(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if session.User.ID != "" {
		if err := s.store.EnsureUser(r.Context(), session.User.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.identity.Login(r.Context(), strings.TrimSpace(in.Email), strings.TrimSpace(in.Password))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.store.EnsureUser(r.Context(), session.User.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	q := catalog.Query{
		Type:   catalog.Type(r.URL.Query().Get("type")),
		Rarity: catalog.Rarity(r.URL.Query().Get("rarity")),
	}
	items := catalog.Filter(s.gallery, q)
	if key := r.URL.Query().Get("sort"); key != "" {
		items = catalog.SortBy(items, catalog.SortKey(key))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGalleryItem(w http.ResponseWriter, r *http.Request) {
	item, ok := catalog.Lookup(s.gallery, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item":  item,
		"price": s.currentSample(item),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	item, ok := catalog.Lookup(s.gallery, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown item")
		return
	}
	writeJSON(w, http.StatusOK, s.currentSample(item))
}

// currentSample returns the live walk sample, or a stable base-price quote
// for untracked items.
func (s *Server) currentSample(item catalog.Item) market.Sample {
	if sample, ok := s.board.Snapshot(item.ID); ok {
		return sample
	}
	return market.Sample{
		ItemID:      item.ID,
		PriceMicros: item.BasePriceMicros,
		Trend:       market.TrendStable,
		At:          time.Now(),
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	led, err := s.store.GetUser(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, led)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		AmountMicros int64  `json:"amount_micros"`
		Source       string `json:"source"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	led, err := s.store.Credit(r.Context(), user.UserID, in.AmountMicros)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("credit", "user", user.UserID, "amount_micros", in.AmountMicros, "source", in.Source)
	writeJSON(w, http.StatusOK, led)
}

func (s *Server) handleTierUpgrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target := ledger.Tier(strings.ToLower(strings.TrimSpace(in.Tier)))
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}
	led, err := s.store.UpgradeTier(r.Context(), user.UserID, target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, led)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ItemID string `json:"item_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, ok := catalog.Lookup(s.gallery, in.ItemID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown item")
		return
	}
	price := s.currentSample(item).PriceMicros
	led, err := s.store.Purchase(r.Context(), user.UserID, item.ID, price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("purchase", "user", user.UserID, "item", item.ID, "price_micros", price)
	writeJSON(w, http.StatusOK, map[string]any{
		"ledger":       led,
		"item_id":      item.ID,
		"price_micros": price,
	})
}

func (s *Server) handleAuctionOpen(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ItemID string `json:"item_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, ok := catalog.Lookup(s.gallery, in.ItemID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown item")
		return
	}
	session, err := s.auctions.Open(user.UserID, item)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) handleAuctionStatus(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	session, err := s.auctions.Get(chi.URLParam(r, "id"), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleAuctionBid(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	session, err := s.auctions.Get(chi.URLParam(r, "id"), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := session.PlaceBid(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAuctionClose(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.auctions.Close(chi.URLParam(r, "id"), user.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Commands []ReplayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]ReplayResult, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		results = append(results, s.replayCommand(r.Context(), user.UserID, cmd))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ReplayCommand is one queued offline action from the CLI. The ID is the
// queue entry's replay key, echoed back so the client can match results to
// entries; a command whose key was already applied is skipped and reported
// as applied, so a retry after a lost response cannot double-charge.
type ReplayCommand struct {
	ID           string `json:"id,omitempty"`
	Kind         string `json:"kind"`
	ItemID       string `json:"item_id,omitempty"`
	AmountMicros int64  `json:"amount_micros,omitempty"`
}

type ReplayResult struct {
	ID    string `json:"id,omitempty"`
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) replayCommand(ctx context.Context, userID string, cmd ReplayCommand) ReplayResult {
	res := ReplayResult{ID: cmd.ID, Kind: cmd.Kind}
	if cmd.ID != "" {
		seen, err := s.store.SeenReplay(ctx, userID, cmd.ID)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		if seen {
			s.log.Info("replay skipped", "user", userID, "kind", cmd.Kind, "key", cmd.ID)
			res.OK = true
			return res
		}
	}
	var err error
	switch cmd.Kind {
	case "purchase":
		item, ok := catalog.Lookup(s.gallery, cmd.ItemID)
		if !ok {
			err = errors.New("unknown item")
			break
		}
		_, err = s.store.Purchase(ctx, userID, item.ID, s.currentSample(item).PriceMicros)
	case "credit":
		_, err = s.store.Credit(ctx, userID, cmd.AmountMicros)
	default:
		err = fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	// Failed commands stay unmarked so the client can queue and retry them.
	if cmd.ID != "" {
		if err := s.store.MarkReplay(ctx, userID, cmd.ID); err != nil {
			s.log.Error("mark replay key", "user", userID, "key", cmd.ID, "err", err)
		}
	}
	res.OK = true
	return res
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAlreadyOwned),
		errors.Is(err, ledger.ErrTierChange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, auction.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auction.ErrAuctionConflict),
		errors.Is(err, ledger.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auction.ErrAuctionEnded):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
