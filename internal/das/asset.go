package das

import "strings"

// Asset mirrors the subset of the Helius DAS asset JSON the node consumes.
type Asset struct {
	ID        string    `json:"id"`
	Content   Content   `json:"content"`
	Ownership Ownership `json:"ownership"`
	Grouping  []Group   `json:"grouping"`
	Royalty   Royalty   `json:"royalty"`
	Burnt     bool      `json:"burnt"`
}

type Content struct {
	JsonUri  string   `json:"json_uri"`
	Metadata Metadata `json:"metadata"`
	Links    Links    `json:"links"`
}

type Metadata struct {
	Name       string      `json:"name"`
	Symbol     string      `json:"symbol"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type Links struct {
	Image       string `json:"image"`
	ExternalUrl string `json:"external_url"`
}

type Ownership struct {
	Owner    string `json:"owner"`
	Frozen   bool   `json:"frozen"`
	Delegate string `json:"delegate"`
}

type Group struct {
	GroupKey   string `json:"group_key"`
	GroupValue string `json:"group_value"`
}

type Royalty struct {
	BasisPoints int `json:"basis_points"`
}

// Collection returns the verified collection address the asset is grouped
// under, or "" when the asset carries no collection grouping.
func (a *Asset) Collection() string {
	for _, g := range a.Grouping {
		if g.GroupKey == "collection" {
			return g.GroupValue
		}
	}
	return ""
}

// Rarity scans the metadata attributes for a "rarity" trait and returns its
// lowercased value. Assets without the trait report "none".
func (a *Asset) Rarity() string {
	for _, attr := range a.Content.Metadata.Attributes {
		if strings.EqualFold(attr.TraitType, "rarity") {
			if s, ok := attr.Value.(string); ok && s != "" {
				return strings.ToLower(s)
			}
		}
	}
	return "none"
}
