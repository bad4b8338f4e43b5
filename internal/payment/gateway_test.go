package payment

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

const testSecret = "SECRETKEY123"

func testGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := New(Config{
		MerchantCode: "BAKERY01",
		Secret:       testSecret,
		URL:          "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:    "http://localhost:8080/api/payment/vnpay/return",
		Locale:       "vn",
		Currency:     "vnd",
		Location:     time.FixedZone("ICT", 7*3600),
	})
	require.NoError(t, err)
	gw.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return gw
}

func fixtureParams() url.Values {
	return url.Values{
		"vnp_Amount":     {"11700000"},
		"vnp_Command":    {"pay"},
		"vnp_CreateDate": {"20250615190000"},
		"vnp_CurrCode":   {"VND"},
		"vnp_IpAddr":     {"127.0.0.1"},
		"vnp_Locale":     {"vn"},
		"vnp_OrderInfo":  {"Payment for order 7f9c2ba4"},
		"vnp_OrderType":  {"other"},
		"vnp_ReturnUrl":  {"http://localhost:8080/api/payment/vnpay/return"},
		"vnp_TmnCode":    {"BAKERY01"},
		"vnp_TxnRef":     {"7f9c2ba4"},
		"vnp_Version":    {"2.1.0"},
	}
}

const fixtureDigest = "06ed99819d6ff2bfa638275bb7a15b1af5dc1198e797a47a8f98be77259172934de1ed123a591192d601a29f302d8894793e38da10d8e4969ca6a91ecd7f430f"

func TestSign(t *testing.T) {
	assert.Equal(t, fixtureDigest, Sign(testSecret, fixtureParams()))

	// Empty fields are not part of the signed data.
	withEmpty := fixtureParams()
	withEmpty.Set(FieldBankCode, "")
	assert.Equal(t, fixtureDigest, Sign(testSecret, withEmpty))

	assert.NotEqual(t, fixtureDigest, Sign("SECRETKEY124", fixtureParams()))
}

func TestCanonical(t *testing.T) {
	got := canonical(url.Values{
		"b": {"x y"},
		"a": {"http://h/p"},
		"c": {""},
	})
	assert.Equal(t, "a=http%3A%2F%2Fh%2Fp&b=x+y", got)
}

func TestCanonical_ReferenceClientMarks(t *testing.T) {
	params := url.Values{
		"vnp_Amount":    {"11700000"},
		"vnp_OrderInfo": {"Banh mi (x2)! 'fresh' *today*"},
		"vnp_TxnRef":    {"7f9c2ba4"},
	}
	assert.Equal(t,
		"vnp_Amount=11700000&vnp_OrderInfo=Banh+mi+(x2)!+'fresh'+*today*&vnp_TxnRef=7f9c2ba4",
		canonical(params),
	)
	// Digest produced by the reference client for the same fields.
	assert.Equal(t,
		"3ad216618de03745264825c072445382e053ac6956064255c653ce274b7cb09f79288be386d3d744c2d244a8fb306579d0f4dd3bd141be3c7bc9c4b38f7f34bb",
		Sign(testSecret, params),
	)

	assert.Equal(t, "a=1%2B1%3D2+~ok", canonical(url.Values{"a": {"1+1=2 ~ok"}}))
}

func TestGateway_PaymentURL(t *testing.T) {
	gw := testGateway(t)
	o := &order.Order{ID: "7f9c2ba4", FinalPrice: decimal.NewFromInt(117000)}

	raw := gw.PaymentURL(o, "127.0.0.1", "")
	require.True(t, strings.HasPrefix(raw, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?"))
	assert.True(t, strings.HasSuffix(raw, "&vnp_SecureHash="+fixtureDigest), raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	params := u.Query()
	assert.Equal(t, "20250615190000", params.Get(FieldCreateDate))
	assert.Equal(t, "11700000", params.Get(FieldAmount))
	assert.False(t, params.Has(FieldBankCode))
	require.NoError(t, gw.Verify(params))
}

func TestGateway_Verify(t *testing.T) {
	gw := testGateway(t)

	signed := func() url.Values {
		p := fixtureParams()
		p.Set(FieldSecureHash, fixtureDigest)
		return p
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, gw.Verify(signed()))
	})

	t.Run("hash type is ignored", func(t *testing.T) {
		p := signed()
		p.Set(FieldSecureHashType, "HmacSHA512")
		require.NoError(t, gw.Verify(p))
	})

	t.Run("missing hash", func(t *testing.T) {
		require.ErrorIs(t, gw.Verify(fixtureParams()), ErrInvalidSignature)
	})

	t.Run("tampered field", func(t *testing.T) {
		p := signed()
		p.Set(FieldAmount, "11700001")
		require.ErrorIs(t, gw.Verify(p), ErrInvalidSignature)
	})

	t.Run("single character flip in hash", func(t *testing.T) {
		p := signed()
		p.Set(FieldSecureHash, "16"+fixtureDigest[2:])
		require.ErrorIs(t, gw.Verify(p), ErrInvalidSignature)
	})
}

func TestNew(t *testing.T) {
	_, err := New(Config{Secret: "s", URL: "https://x", Currency: "VND"})
	require.Error(t, err)

	_, err = New(Config{MerchantCode: "m", Secret: "s", URL: "https://x", Currency: "DONG"})
	require.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(11700000), MinorUnits(decimal.NewFromInt(117000)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.985")))
}
