package auction

import (
	"crypto/sha256"
	"fmt"
)

// MetaplexAuctionHouseProgram is the mainnet Auction House program id.
const MetaplexAuctionHouseProgram = "p1exdMJcjVao65QdewkaZRUnU6VPSXhus9n2GzWfh98"

// listingReceiptDiscriminator is the anchor account discriminator, i.e.
// sha256("account:ListingReceipt")[0:8].
var listingReceiptDiscriminator = anchorDiscriminator("account:ListingReceipt")

func anchorDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte(name))
	return h[:8]
}

// ListingReceipt is the decoded Auction House listing receipt account. A
// receipt with a PurchaseReceipt has been sold; one with CanceledAt set has
// been delisted.
type ListingReceipt struct {
	TradeState      string
	Bookkeeper      string
	AuctionHouse    string
	Seller          string
	Metadata        string
	PurchaseReceipt string
	Price           uint64
	TokenSize       uint64
	Bump            uint8
	TradeStateBump  uint8
	CreatedAt       int64
	CanceledAt      *int64
}

func (r *ListingReceipt) Sold() bool {
	return r.PurchaseReceipt != ""
}

func (r *ListingReceipt) Canceled() bool {
	return r.CanceledAt != nil
}

// DecodeListingReceipt deserializes a ListingReceipt account after checking
// the anchor discriminator.
func DecodeListingReceipt(data []byte) (*ListingReceipt, error) {
	reader := NewBorshReader(data)

	disc := make([]byte, 0, 8)
	for i := 0; i < 8; i++ {
		b, err := reader.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("failed to read discriminator: %w", err)
		}
		disc = append(disc, b)
	}
	for i := range disc {
		if disc[i] != listingReceiptDiscriminator[i] {
			return nil, fmt.Errorf("account is not a ListingReceipt")
		}
	}

	receipt := &ListingReceipt{}
	var err error
	if receipt.TradeState, err = reader.ReadPubkey(); err != nil {
		return nil, fmt.Errorf("failed to read trade state: %w", err)
	}
	if receipt.Bookkeeper, err = reader.ReadPubkey(); err != nil {
		return nil, fmt.Errorf("failed to read bookkeeper: %w", err)
	}
	if receipt.AuctionHouse, err = reader.ReadPubkey(); err != nil {
		return nil, fmt.Errorf("failed to read auction house: %w", err)
	}
	if receipt.Seller, err = reader.ReadPubkey(); err != nil {
		return nil, fmt.Errorf("failed to read seller: %w", err)
	}
	if receipt.Metadata, err = reader.ReadPubkey(); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	hasPurchase, err := reader.ReadOption()
	if err != nil {
		return nil, fmt.Errorf("failed to read purchase receipt option: %w", err)
	}
	if hasPurchase {
		if receipt.PurchaseReceipt, err = reader.ReadPubkey(); err != nil {
			return nil, fmt.Errorf("failed to read purchase receipt: %w", err)
		}
	}

	if receipt.Price, err = reader.ReadU64(); err != nil {
		return nil, fmt.Errorf("failed to read price: %w", err)
	}
	if receipt.TokenSize, err = reader.ReadU64(); err != nil {
		return nil, fmt.Errorf("failed to read token size: %w", err)
	}
	if receipt.Bump, err = reader.ReadU8(); err != nil {
		return nil, fmt.Errorf("failed to read bump: %w", err)
	}
	if receipt.TradeStateBump, err = reader.ReadU8(); err != nil {
		return nil, fmt.Errorf("failed to read trade state bump: %w", err)
	}
	if receipt.CreatedAt, err = reader.ReadI64(); err != nil {
		return nil, fmt.Errorf("failed to read created_at: %w", err)
	}

	hasCanceled, err := reader.ReadOption()
	if err != nil {
		return nil, fmt.Errorf("failed to read canceled_at option: %w", err)
	}
	if hasCanceled {
		canceledAt, err := reader.ReadI64()
		if err != nil {
			return nil, fmt.Errorf("failed to read canceled_at: %w", err)
		}
		receipt.CanceledAt = &canceledAt
	}

	return receipt, nil
}

// decodeMetadataMint extracts the mint pubkey from a token metadata account.
// The account layout starts with a 1-byte key and the 32-byte update
// authority before the mint.
func decodeMetadataMint(data []byte) (string, error) {
	reader := NewBorshReader(data)
	if err := reader.Skip(1 + 32); err != nil {
		return "", fmt.Errorf("metadata account too short: %w", err)
	}
	mint, err := reader.ReadPubkey()
	if err != nil {
		return "", fmt.Errorf("failed to read mint: %w", err)
	}
	return mint, nil
}
