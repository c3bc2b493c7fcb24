package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "github.com/zzb13647948235-source/ArtIsLife-sub001/internal/cli"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/config"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "artctl",
		Short:        "ArtIsLife gallery client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newGalleryCmd(&apiBase),
		newItemCmd(&apiBase),
		newBuyCmd(&apiBase),
		newBalanceCmd(&apiBase),
		newCreditCmd(&apiBase),
		newTierCmd(&apiBase),
		newAuctionCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a gallery account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, email, password)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `artctl login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to the gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newGalleryCmd(apiBase *string) *cobra.Command {
	var artType, rarity, sort string
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Browse the gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			items, err := client.Gallery(ctx, sess.AccessToken, artType, rarity, sort)
			if err != nil {
				return err
			}
			renderGallery(items)
			return nil
		},
	}
	cmd.Flags().StringVar(&artType, "type", "", "filter by type (portrait/landscape/abstract)")
	cmd.Flags().StringVar(&rarity, "rarity", "", "filter by rarity (common/rare/legendary)")
	cmd.Flags().StringVar(&sort, "sort", "", "sort by title/artist/year/price")
	return cmd
}

func newItemCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "item [item_id]",
		Short: "Inspect one artwork and its live price",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			itemID, err := itemIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			detail, err := client.Item(ctx, sess.AccessToken, itemID)
			if err != nil {
				return err
			}
			renderItem(detail.Item, detail.Price)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	var queueOnly bool
	cmd := &cobra.Command{
		Use:   "buy [item_id]",
		Short: "Buy an artwork at its current price",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			itemID, err := itemIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			if queueOnly {
				if err := syncq.Push(syncq.Command{Kind: "purchase", ItemID: itemID}); err != nil {
					return err
				}
				printInfo("Purchase queued for `artctl sync`.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Buy(ctx, sess.AccessToken, itemID)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Kind:   "purchase",
					ItemID: itemID,
				})
			}
			printSuccess(fmt.Sprintf("Bought %s for %s credits.", out.ItemID, formatMicros(out.PriceMicros)))
			renderLedger(out.Ledger)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "queue the purchase locally instead of calling the API")
	return cmd
}

func newBalanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show balance, tier and inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			led, err := client.Ledger(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderLedger(led)
			return nil
		},
	}
}

func newCreditCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "credit [credits]",
		Short: "Add credits to your balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			var amount int64
			if len(args) > 0 {
				amount, err = strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil || amount <= 0 {
					return fmt.Errorf("invalid credit amount")
				}
			} else {
				amount, err = promptInt64("Credits to add", 1)
				if err != nil {
					return err
				}
			}
			micros := amount * ledger.MicrosPerCredit
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			led, err := client.Credit(ctx, sess.AccessToken, micros, "manual")
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Kind:         "credit",
					AmountMicros: micros,
				})
			}
			printSuccess(fmt.Sprintf("Added %d credits.", amount))
			renderLedger(led)
			return nil
		},
	}
}

func newTierCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tier [artist|patron]",
		Short: "Upgrade your membership tier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			var tier string
			if len(args) > 0 {
				tier = strings.ToLower(strings.TrimSpace(args[0]))
			} else {
				tier, err = promptChoice("Tier", []string{"artist", "patron"}, "artist")
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			led, err := client.UpgradeTier(ctx, sess.AccessToken, tier)
			if err != nil {
				return err
			}
			if err := cl.RememberTier(string(led.Tier)); err != nil {
				printWarn(fmt.Sprintf("could not cache tier locally: %v", err))
			}
			printSuccess(fmt.Sprintf("Tier upgraded to %s.", led.Tier))
			renderLedger(led)
			return nil
		},
	}
}

func newAuctionCmd(apiBase *string) *cobra.Command {
	auction := &cobra.Command{
		Use:   "auction",
		Short: "Auction commands",
	}
	auction.AddCommand(&cobra.Command{
		Use:   "open [item_id]",
		Short: "Open an auction for an artwork",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			itemID, err := itemIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			snap, err := client.AuctionOpen(ctx, sess.AccessToken, itemID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Auction %s opened for %s.", snap.SessionID, snap.ItemID))
			renderAuction(snap)
			return nil
		},
	})
	auction.AddCommand(&cobra.Command{
		Use:   "bid [session_id]",
		Short: "Place a bid on your auction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			sessionID, err := sessionIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			snap, err := client.AuctionBid(ctx, sess.AccessToken, sessionID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bid placed at %s credits.", formatMicros(snap.CurrentBidMicros)))
			renderAuction(snap)
			return nil
		},
	})
	auction.AddCommand(&cobra.Command{
		Use:   "status [session_id]",
		Short: "Show auction status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			sessionID, err := sessionIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			snap, err := client.AuctionStatus(ctx, sess.AccessToken, sessionID)
			if err != nil {
				return err
			}
			renderAuction(snap)
			return nil
		},
	})
	auction.AddCommand(&cobra.Command{
		Use:   "watch [session_id]",
		Short: "Watch an auction live",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			sessionID, err := sessionIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			return watchAuction(cmd.Context(), newClient(apiBase), sess.AccessToken, sessionID)
		},
	})
	auction.AddCommand(&cobra.Command{
		Use:   "close [session_id]",
		Short: "Abandon an auction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			sessionID, err := sessionIDFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if err := client.AuctionClose(ctx, sess.AccessToken, sessionID); err != nil {
				return err
			}
			printSuccess("Auction closed.")
			return nil
		},
	})
	return auction
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(apiBase)
			results, err := client.SyncReplay(ctx, sess.AccessToken, queue)
			if err != nil {
				return err
			}
			for i, res := range results {
				if res.OK {
					continue
				}
				subject := res.Kind
				if i < len(queue) && queue[i].ItemID != "" {
					subject += " " + queue[i].ItemID
				}
				printError(fmt.Sprintf("Replay failed for %s: %s", subject, res.Error))
			}
			// Failed entries stay queued for the next sync.
			remaining := cl.RemainingAfterReplay(queue, results)
			if len(remaining) == 0 {
				if err := syncq.Clear(); err != nil {
					return err
				}
			} else if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", len(queue)-len(remaining), len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError pushes the command to the offline queue when the API is
// unreachable. Structured API errors (the server said no) are returned as-is.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "api status") {
		return err
	}
	if qErr := syncq.Push(cmd); qErr != nil {
		return fmt.Errorf("request failed and queueing failed: %v (queue: %v)", err, qErr)
	}
	printWarn("API unreachable, command queued for `artctl sync`.")
	return nil
}

func itemIDFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	return promptRequired("Item ID")
}

func sessionIDFromArgsOrPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	return promptRequired("Session ID")
}
