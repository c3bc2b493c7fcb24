package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return text, nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderGallery(items []catalog.Item) {
	accent.Println("\n== GALLERY ==")
	if len(items) == 0 {
		printInfo("No artworks match.")
		return
	}
	fmt.Printf("%-9s %-34s %-18s %6s %-10s %-10s %12s\n", "ID", "TITLE", "ARTIST", "YEAR", "TYPE", "RARITY", "PRICE")
	for _, it := range items {
		fmt.Printf("%-9s %-34s %-18s %6d %-10s %-10s %12s\n",
			it.ID,
			truncate(it.Title, 34),
			truncate(it.Artist, 18),
			it.Year,
			it.Type,
			it.Rarity,
			formatMicros(it.BasePriceMicros),
		)
	}
	fmt.Println()
}

func renderItem(item catalog.Item, sample market.Sample) {
	accent.Printf("\n== %s ==\n", item.Title)
	fmt.Printf("ID:         %s\n", item.ID)
	fmt.Printf("Artist:     %s (%d)\n", item.Artist, item.Year)
	fmt.Printf("Type:       %s\n", item.Type)
	fmt.Printf("Rarity:     %s\n", item.Rarity)
	fmt.Printf("Base price: %s credits\n", formatMicros(item.BasePriceMicros))
	fmt.Printf("Now:        %s credits %s\n", formatMicros(sample.PriceMicros), trendArrow(sample.Trend))
	fmt.Println()
}

func renderLedger(led ledger.Ledger) {
	accent.Println("\n== LEDGER ==")
	fmt.Printf("Balance:   %s credits\n", formatMicros(led.BalanceMicros))
	fmt.Printf("Tier:      %s\n", led.Tier)
	if len(led.InventoryIDs) == 0 {
		printInfo("No artworks owned yet.")
	} else {
		fmt.Printf("Inventory: %s\n", strings.Join(led.InventoryIDs, ", "))
	}
	fmt.Println()
}

func renderAuction(snap auction.Snapshot) {
	accent.Printf("\n== AUCTION %s ==\n", snap.SessionID)
	fmt.Printf("Item:        %s\n", snap.ItemID)
	fmt.Printf("Current bid: %s credits\n", formatMicros(snap.CurrentBidMicros))
	fmt.Printf("Remaining:   %ds\n", snap.RemainingSeconds)
	fmt.Printf("Status:      %s\n", colorizeStatus(snap.Status))
	if len(snap.Bids) > 0 {
		fmt.Println()
		accent.Println("Bids")
		fmt.Printf("%-16s %12s %-20s\n", "BIDDER", "AMOUNT", "AT")
		for _, b := range snap.Bids {
			fmt.Printf("%-16s %12s %-20s\n",
				truncate(b.Bidder, 16),
				formatMicros(b.AmountMicros),
				b.At.Local().Format("15:04:05"),
			)
		}
	}
	fmt.Println()
}

func colorizeStatus(st auction.Status) string {
	switch st {
	case auction.StatusWon:
		return success.Sprint(string(st))
	case auction.StatusLost:
		return danger.Sprint(string(st))
	default:
		return neutral.Sprint(string(st))
	}
}

func trendArrow(t market.Trend) string {
	switch t {
	case market.TrendUp:
		return success.Sprint("▲")
	case market.TrendDown:
		return danger.Sprint("▼")
	default:
		return neutral.Sprint("·")
	}
}

func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / ledger.MicrosPerCredit
	frac := (v % ledger.MicrosPerCredit) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
