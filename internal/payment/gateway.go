// Package payment integrates the VNPAY-style hosted payment gateway: it
// builds signed redirect URLs and verifies and applies signed callbacks.
package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/bakery-shop/internal/domain/order"
)

// Gateway field names.
const (
	FieldVersion        = "vnp_Version"
	FieldCommand        = "vnp_Command"
	FieldMerchant       = "vnp_TmnCode"
	FieldLocale         = "vnp_Locale"
	FieldCurrency       = "vnp_CurrCode"
	FieldTxnRef         = "vnp_TxnRef"
	FieldOrderInfo      = "vnp_OrderInfo"
	FieldOrderType      = "vnp_OrderType"
	FieldAmount         = "vnp_Amount"
	FieldReturnURL      = "vnp_ReturnUrl"
	FieldIPAddr         = "vnp_IpAddr"
	FieldCreateDate     = "vnp_CreateDate"
	FieldBankCode       = "vnp_BankCode"
	FieldResponseCode   = "vnp_ResponseCode"
	FieldTransactionNo  = "vnp_TransactionNo"
	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"
)

const (
	// ResponseSuccess is the gateway's response code for a captured payment.
	ResponseSuccess = "00"

	dateLayout = "20060102150405"
)

var (
	// ErrInvalidSignature is returned when a callback's signature does not match.
	ErrInvalidSignature = errors.New("invalid payment signature")

	hundred = decimal.NewFromInt(100)
)

// Config holds the merchant credentials and gateway endpoints.
type Config struct {
	MerchantCode string
	Secret       string
	URL          string
	ReturnURL    string
	Version      string
	Locale       string
	Currency     string
	OrderType    string
	Location     *time.Location
}

// Gateway builds signed payment redirects and verifies callbacks.
type Gateway struct {
	cfg Config
	now func() time.Time
}

// New validates cfg and creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.MerchantCode == "" || cfg.Secret == "" {
		return nil, errors.New("gateway merchant code and secret are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, errors.Errorf("invalid gateway url %q", cfg.URL)
	}
	unit, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway currency %q", cfg.Currency)
	}
	cfg.Currency = unit.String()
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Gateway{cfg: cfg, now: time.Now}, nil
}

// MinorUnits converts an amount to the gateway's integer minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// PaymentURL returns the signed redirect URL that starts payment of o.
// bankCode is optional.
func (g *Gateway) PaymentURL(o *order.Order, clientIP, bankCode string) string {
	params := url.Values{}
	params.Set(FieldVersion, g.cfg.Version)
	params.Set(FieldCommand, "pay")
	params.Set(FieldMerchant, g.cfg.MerchantCode)
	params.Set(FieldLocale, g.cfg.Locale)
	params.Set(FieldCurrency, g.cfg.Currency)
	params.Set(FieldTxnRef, o.ID)
	params.Set(FieldOrderInfo, "Payment for order "+o.ID)
	params.Set(FieldOrderType, g.cfg.OrderType)
	params.Set(FieldAmount, strconv.FormatInt(MinorUnits(o.FinalPrice), 10))
	params.Set(FieldReturnURL, g.cfg.ReturnURL)
	params.Set(FieldIPAddr, clientIP)
	params.Set(FieldCreateDate, g.now().In(g.cfg.Location).Format(dateLayout))
	params.Set(FieldBankCode, bankCode)

	query := canonical(params)
	return g.cfg.URL + "?" + query + "&" + FieldSecureHash + "=" + sign(g.cfg.Secret, query)
}

// Verify checks the signature of callback params. The signature fields
// themselves are excluded from the signed data.
func (g *Gateway) Verify(params url.Values) error {
	got := params.Get(FieldSecureHash)
	if got == "" {
		return ErrInvalidSignature
	}

	fields := make(url.Values, len(params))
	for k, v := range params {
		if k == FieldSecureHash || k == FieldSecureHashType {
			continue
		}
		fields[k] = v
	}

	want := Sign(g.cfg.Secret, fields)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical encoding of params.
func Sign(secret string, params url.Values) string {
	return sign(secret, canonical(params))
}

func sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonical drops empty fields, sorts keys and escapes each pair the way
// the gateway's reference client does: encodeURIComponent with spaces as
// '+', joined by '&'.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if len(v) == 0 || v[0] == "" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeComponent(k))
		b.WriteByte('=')
		b.WriteString(escapeComponent(params[k][0]))
	}
	return b.String()
}

// componentUnescaper restores the marks encodeURIComponent leaves as is
// and url.QueryEscape does not.
var componentUnescaper = strings.NewReplacer(
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
