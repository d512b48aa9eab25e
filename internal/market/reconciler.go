package market

import (
	"sort"

	"github.com/vintage-exchange/marketnode/internal/market/marketdb"
)

// AssetFact is what the asset index currently knows about a mint.
type AssetFact struct {
	Owner string
	Burnt bool
}

// ReconcileInput is everything one reconciliation pass looks at: current
// per-source snapshots, the catalog rows written by earlier passes, and the
// asset facts for the mints involved.
type ReconcileInput struct {
	Now       int64
	Assets    map[string]AssetFact
	Snapshots []*ListingSnapshot
	Prior     []*marketdb.Listing
}

// ReconcileOutcome is the set of catalog writes a pass produced. Listings are
// full rows to upsert; Sales are new sale records.
type ReconcileOutcome struct {
	Listings []*marketdb.Listing
	Sales    []*marketdb.Sale
}

// Reconcile folds eventually-consistent source observations into canonical
// listing states. It is deterministic: the same input always produces the
// same outcome, regardless of snapshot order.
//
// Per mint, in precedence order:
//   - a burnt NFT cancels its listing no matter what any market source says
//   - sale evidence wins over an open listing; while a source still shows
//     the listing open the state is pending_sale, afterwards sold
//   - when both auction houses list the same mint, the later listing wins,
//     and on equal timestamps the custom house wins
//   - when escrow and an auction house disagree on price, the on-chain
//     receipt wins
//   - a listing whose seller no longer owns the NFT is stale
//   - a previously active listing no source reports anymore is cancelled
func Reconcile(input ReconcileInput) ReconcileOutcome {
	byMint := make(map[string][]*ListingSnapshot)
	for _, snap := range input.Snapshots {
		byMint[snap.Mint] = append(byMint[snap.Mint], snap)
	}
	priorByMint := make(map[string]*marketdb.Listing, len(input.Prior))
	for _, listing := range input.Prior {
		priorByMint[listing.Mint] = listing
	}

	mints := make([]string, 0, len(byMint)+len(priorByMint))
	seen := make(map[string]bool)
	for mint := range byMint {
		mints = append(mints, mint)
		seen[mint] = true
	}
	for mint := range priorByMint {
		if !seen[mint] {
			mints = append(mints, mint)
		}
	}
	sort.Strings(mints)

	var outcome ReconcileOutcome
	for _, mint := range mints {
		listing, sale := reconcileMint(mint, byMint[mint], priorByMint[mint], input)
		if listing != nil {
			outcome.Listings = append(outcome.Listings, listing)
		}
		if sale != nil {
			outcome.Sales = append(outcome.Sales, sale)
		}
	}
	return outcome
}

func reconcileMint(mint string, snaps []*ListingSnapshot, prior *marketdb.Listing, input ReconcileInput) (*marketdb.Listing, *marketdb.Sale) {
	winner := pickWinner(snaps)
	soldSnap := pickSoldEvidence(snaps)
	asset, assetKnown := input.Assets[mint]

	// Burnt NFTs cannot be traded, whatever the market sources claim.
	if assetKnown && asset.Burnt {
		if row := baseRow(winner, prior, input.Now); row != nil {
			row.State = marketdb.ListingStateCancelled
			return row, nil
		}
		return nil, nil
	}

	if soldSnap != nil {
		sale := saleFromSnapshot(soldSnap)
		row := baseRow(winner, prior, input.Now)
		if row == nil {
			row = rowFromSnapshot(soldSnap, input.Now)
		}
		if winner != nil {
			// A source still shows the listing open; the sale is real
			// but the receipt has not caught up yet.
			row.State = marketdb.ListingStatePendingSale
		} else {
			row.State = marketdb.ListingStateSold
		}
		return row, sale
	}

	if winner != nil {
		row := rowFromSnapshot(winner, input.Now)
		if prior != nil {
			if prior.State == marketdb.ListingStateSold || prior.State == marketdb.ListingStatePendingSale {
				// The catalog already holds sale evidence for this mint;
				// an open receipt lagging behind does not reopen it.
				row.State = marketdb.ListingStatePendingSale
				return row, nil
			}
		}
		if assetKnown && asset.Owner != "" && asset.Owner != winner.Seller {
			row.State = marketdb.ListingStateStale
		}
		return row, nil
	}

	// Nothing reports the listing anymore.
	if prior == nil {
		return nil, nil
	}
	switch prior.State {
	case marketdb.ListingStateActive, marketdb.ListingStateStale:
		row := *prior
		row.State = marketdb.ListingStateCancelled
		row.UpdatedAt = input.Now
		return &row, nil
	case marketdb.ListingStatePendingSale:
		// The open receipt is gone, the sale has settled.
		row := *prior
		row.State = marketdb.ListingStateSold
		row.UpdatedAt = input.Now
		return &row, nil
	}
	return nil, nil
}

// pickWinner chooses the authoritative open listing among the sources
// reporting one.
func pickWinner(snaps []*ListingSnapshot) *ListingSnapshot {
	var onchain []*ListingSnapshot
	var escrowSnap *ListingSnapshot
	for _, snap := range snaps {
		if snap.Sold || snap.CanceledAt != nil {
			continue
		}
		switch snap.Source {
		case marketdb.SourceAuctionHouse, marketdb.SourceCustomAuctionHouse:
			onchain = append(onchain, snap)
		case marketdb.SourceEscrow:
			escrowSnap = snap
		}
	}

	var winner *ListingSnapshot
	for _, snap := range onchain {
		if winner == nil {
			winner = snap
			continue
		}
		if snap.CreatedAt > winner.CreatedAt {
			winner = snap
		} else if snap.CreatedAt == winner.CreatedAt && snap.Source == marketdb.SourceCustomAuctionHouse {
			winner = snap
		}
	}

	if winner == nil {
		return escrowSnap
	}
	if escrowSnap != nil && escrowSnap.EscrowAccount != "" {
		// Keep the escrow account reference, but the on-chain receipt owns
		// the price.
		merged := *winner
		merged.EscrowAccount = escrowSnap.EscrowAccount
		return &merged
	}
	return winner
}

// pickSoldEvidence selects the sale-bearing snapshot, preferring one that
// carries a receipt so the sale record gets a signature. Ties break on the
// source name to keep the pass deterministic.
func pickSoldEvidence(snaps []*ListingSnapshot) *ListingSnapshot {
	var best *ListingSnapshot
	for _, snap := range snaps {
		if !snap.Sold {
			continue
		}
		if best == nil {
			best = snap
			continue
		}
		if (snap.PurchaseReceipt != "") != (best.PurchaseReceipt != "") {
			if snap.PurchaseReceipt != "" {
				best = snap
			}
			continue
		}
		if snap.Source < best.Source {
			best = snap
		}
	}
	return best
}

// baseRow builds the row to write for a mint, preferring the current winner
// over the prior catalog row.
func baseRow(winner *ListingSnapshot, prior *marketdb.Listing, now int64) *marketdb.Listing {
	if winner != nil {
		return rowFromSnapshot(winner, now)
	}
	if prior != nil {
		row := *prior
		row.UpdatedAt = now
		return &row
	}
	return nil
}

func rowFromSnapshot(snap *ListingSnapshot, now int64) *marketdb.Listing {
	return &marketdb.Listing{
		Mint:          snap.Mint,
		Seller:        snap.Seller,
		PriceLamports: snap.PriceLamports,
		Source:        snap.Source,
		AuctionHouse:  snap.AuctionHouse,
		EscrowAccount: snap.EscrowAccount,
		State:         marketdb.ListingStateActive,
		ListedAt:      snap.CreatedAt,
		UpdatedAt:     now,
	}
}

func saleFromSnapshot(snap *ListingSnapshot) *marketdb.Sale {
	return &marketdb.Sale{
		Mint:          snap.Mint,
		Seller:        snap.Seller,
		PriceLamports: snap.PriceLamports,
		Signature:     snap.PurchaseReceipt,
		OccurredAt:    snap.ObservedAt,
		Source:        snap.Source,
	}
}
