// Package catalog holds the static gallery of artworks and the pure
// filter/sort operations the economy consumes. Items are immutable once
// loaded; nothing in this package mutates its inputs.
package catalog

import (
	"sort"
	"strings"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

type Type string

const (
	TypePortrait  Type = "portrait"
	TypeLandscape Type = "landscape"
	TypeAbstract  Type = "abstract"
)

type Item struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Year            int    `json:"year"`
	BasePriceMicros int64  `json:"base_price_micros"`
	Rarity          Rarity `json:"rarity"`
	Type            Type   `json:"type"`
}

// Query filters by exact enum match; zero-value fields match everything.
type Query struct {
	Type   Type
	Rarity Rarity
}

type SortKey string

const (
	SortByTitle  SortKey = "title"
	SortByArtist SortKey = "artist"
	SortByYear   SortKey = "year"
	SortByPrice  SortKey = "price"
)

func Filter(items []Item, q Query) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if q.Type != "" && it.Type != q.Type {
			continue
		}
		if q.Rarity != "" && it.Rarity != q.Rarity {
			continue
		}
		out = append(out, it)
	}
	return out
}

// SortBy returns a sorted copy; unknown keys fall back to title order.
func SortBy(items []Item, key SortKey) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		switch key {
		case SortByArtist:
			return out[i].Artist < out[j].Artist
		case SortByYear:
			return out[i].Year < out[j].Year
		case SortByPrice:
			return out[i].BasePriceMicros < out[j].BasePriceMicros
		default:
			return out[i].Title < out[j].Title
		}
	})
	return out
}

func Lookup(items []Item, id string) (Item, bool) {
	id = strings.TrimSpace(id)
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Gallery returns the built-in catalog. Prices are base valuations in
// credits; the live price walk animates around them at display time.
func Gallery() []Item {
	c := ledger.MicrosPerCredit
	return []Item{
		{ID: "item-1", Title: "Girl with a Pearl Earring", Artist: "Johannes Vermeer", Year: 1665, BasePriceMicros: 220 * c, Rarity: RarityLegendary, Type: TypePortrait},
		{ID: "item-2", Title: "The Starry Night", Artist: "Vincent van Gogh", Year: 1889, BasePriceMicros: 260 * c, Rarity: RarityLegendary, Type: TypeLandscape},
		{ID: "item-3", Title: "Composition VIII", Artist: "Wassily Kandinsky", Year: 1923, BasePriceMicros: 140 * c, Rarity: RarityRare, Type: TypeAbstract},
		{ID: "item-4", Title: "Wanderer above the Sea of Fog", Artist: "Caspar David Friedrich", Year: 1818, BasePriceMicros: 180 * c, Rarity: RarityRare, Type: TypeLandscape},
		{ID: "item-5", Title: "Self-Portrait with Thorn Necklace", Artist: "Frida Kahlo", Year: 1940, BasePriceMicros: 100 * c, Rarity: RarityRare, Type: TypePortrait},
		{ID: "item-6", Title: "Water Lilies", Artist: "Claude Monet", Year: 1906, BasePriceMicros: 150 * c, Rarity: RarityCommon, Type: TypeLandscape},
		{ID: "item-7", Title: "Black Square", Artist: "Kazimir Malevich", Year: 1915, BasePriceMicros: 90 * c, Rarity: RarityCommon, Type: TypeAbstract},
		{ID: "item-8", Title: "Portrait of Adele Bloch-Bauer I", Artist: "Gustav Klimt", Year: 1907, BasePriceMicros: 240 * c, Rarity: RarityLegendary, Type: TypePortrait},
		{ID: "item-9", Title: "The Great Wave off Kanagawa", Artist: "Katsushika Hokusai", Year: 1831, BasePriceMicros: 170 * c, Rarity: RarityRare, Type: TypeLandscape},
		{ID: "item-10", Title: "Convergence", Artist: "Jackson Pollock", Year: 1952, BasePriceMicros: 120 * c, Rarity: RarityCommon, Type: TypeAbstract},
		{ID: "item-11", Title: "American Gothic", Artist: "Grant Wood", Year: 1930, BasePriceMicros: 110 * c, Rarity: RarityCommon, Type: TypePortrait},
		{ID: "item-12", Title: "Broadway Boogie Woogie", Artist: "Piet Mondrian", Year: 1943, BasePriceMicros: 130 * c, Rarity: RarityRare, Type: TypeAbstract},
	}
}
