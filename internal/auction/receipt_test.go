package auction

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return key
}

type receiptFixture struct {
	tradeState      []byte
	bookkeeper      []byte
	auctionHouse    []byte
	seller          []byte
	metadata        []byte
	purchaseReceipt []byte
	price           uint64
	tokenSize       uint64
	createdAt       int64
	canceledAt      *int64
}

func (f receiptFixture) encode() []byte {
	buf := append([]byte{}, listingReceiptDiscriminator...)
	buf = append(buf, f.tradeState...)
	buf = append(buf, f.bookkeeper...)
	buf = append(buf, f.auctionHouse...)
	buf = append(buf, f.seller...)
	buf = append(buf, f.metadata...)
	if f.purchaseReceipt != nil {
		buf = append(buf, 1)
		buf = append(buf, f.purchaseReceipt...)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint64(buf, f.price)
	buf = binary.LittleEndian.AppendUint64(buf, f.tokenSize)
	buf = append(buf, 252, 251)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(f.createdAt))
	if f.canceledAt != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(*f.canceledAt))
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func TestDecodeListingReceipt(t *testing.T) {
	fixture := receiptFixture{
		tradeState:   testKey(1),
		bookkeeper:   testKey(2),
		auctionHouse: testKey(3),
		seller:       testKey(4),
		metadata:     testKey(5),
		price:        1_500_000_000,
		tokenSize:    1,
		createdAt:    1700000000,
	}

	receipt, err := DecodeListingReceipt(fixture.encode())
	require.NoError(t, err)

	assert.Equal(t, base58.Encode(testKey(1)), receipt.TradeState)
	assert.Equal(t, base58.Encode(testKey(3)), receipt.AuctionHouse)
	assert.Equal(t, base58.Encode(testKey(4)), receipt.Seller)
	assert.Equal(t, base58.Encode(testKey(5)), receipt.Metadata)
	assert.Equal(t, uint64(1_500_000_000), receipt.Price)
	assert.Equal(t, uint64(1), receipt.TokenSize)
	assert.Equal(t, uint8(252), receipt.Bump)
	assert.Equal(t, uint8(251), receipt.TradeStateBump)
	assert.Equal(t, int64(1700000000), receipt.CreatedAt)
	assert.False(t, receipt.Sold())
	assert.False(t, receipt.Canceled())
}

func TestDecodeListingReceipt_SoldAndCanceled(t *testing.T) {
	canceledAt := int64(1700009999)
	fixture := receiptFixture{
		tradeState:      testKey(1),
		bookkeeper:      testKey(2),
		auctionHouse:    testKey(3),
		seller:          testKey(4),
		metadata:        testKey(5),
		purchaseReceipt: testKey(6),
		price:           42,
		tokenSize:       1,
		createdAt:       1700000000,
		canceledAt:      &canceledAt,
	}

	receipt, err := DecodeListingReceipt(fixture.encode())
	require.NoError(t, err)

	assert.True(t, receipt.Sold())
	assert.Equal(t, base58.Encode(testKey(6)), receipt.PurchaseReceipt)
	require.True(t, receipt.Canceled())
	assert.Equal(t, canceledAt, *receipt.CanceledAt)
}

func TestDecodeListingReceipt_WrongDiscriminator(t *testing.T) {
	data := receiptFixture{
		tradeState:   testKey(1),
		bookkeeper:   testKey(2),
		auctionHouse: testKey(3),
		seller:       testKey(4),
		metadata:     testKey(5),
	}.encode()
	data[0] ^= 0xff

	_, err := DecodeListingReceipt(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a ListingReceipt")
}

func TestDecodeListingReceipt_Truncated(t *testing.T) {
	data := receiptFixture{
		tradeState:   testKey(1),
		bookkeeper:   testKey(2),
		auctionHouse: testKey(3),
		seller:       testKey(4),
		metadata:     testKey(5),
	}.encode()

	_, err := DecodeListingReceipt(data[:50])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer underflow")
}

func TestDecodeMetadataMint(t *testing.T) {
	data := append([]byte{4}, testKey(7)...)
	data = append(data, testKey(8)...)
	data = append(data, []byte{0, 0, 0, 0}...)

	mint, err := decodeMetadataMint(data)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(testKey(8)), mint)

	_, err = decodeMetadataMint([]byte{4, 1, 2})
	assert.Error(t, err)
}
