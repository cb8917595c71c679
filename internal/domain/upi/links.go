// Package upi builds UPI payment deep links and their QR rendering.
package upi

import (
	"fmt"
	"net/url"
	"strings"

	"upilink/internal/models"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const (
	Currency = "INR"

	// Default edge length of rendered QR codes, in pixels.
	DefaultQRSize = 320
)

// appSchemes maps each known app to the URI prefix it registers for UPI
// intents. BHIM handles the generic scheme.
var appSchemes = map[string]string{
	models.UPIAppGPay:    "tez://upi/pay",
	models.UPIAppPhonePe: "phonepe://pay",
	models.UPIAppPaytm:   "paytmmp://pay",
	models.UPIAppBHIM:    "upi://pay",
}

// PaymentParams are the fields encoded into a payment intent.
type PaymentParams struct {
	VPA          string
	MerchantName string
	Amount       decimal.Decimal
	Note         string
	OrderID      string
}

// NoteFor is the transaction note shown by the payer's app.
func NoteFor(merchantName, orderID string) string {
	note := fmt.Sprintf("Payment to %s (%s)", merchantName, orderID)
	if r := []rune(note); len(r) > 80 {
		note = string(r[:80])
	}
	return note
}

// query encodes params in the order UPI apps expect: pa, pn, am, cu, tn, tr.
// Spaces are percent-encoded since several apps do not decode '+'.
func (p PaymentParams) query() string {
	pairs := [][2]string{
		{"pa", p.VPA},
		{"pn", p.MerchantName},
		{"am", p.Amount.StringFixed(2)},
		{"cu", Currency},
	}
	if p.Note != "" {
		pairs = append(pairs, [2]string{"tn", p.Note})
	}
	if p.OrderID != "" {
		pairs = append(pairs, [2]string{"tr", p.OrderID})
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		parts = append(parts, kv[0]+"="+escape(kv[1]))
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DeepLink returns the generic upi://pay intent.
func DeepLink(p PaymentParams) string {
	return "upi://pay?" + p.query()
}

// AppLink returns the intent for one app, or false for an unknown app.
func AppLink(app string, p PaymentParams) (string, bool) {
	scheme, ok := appSchemes[app]
	if !ok {
		return "", false
	}
	return scheme + "?" + p.query(), true
}

// AppLinks returns intents for every enabled app, keyed by app name.
func AppLinks(enabled models.UPIAppFlags, p PaymentParams) map[string]string {
	links := make(map[string]string)
	for _, app := range models.KnownUPIApps {
		if !enabled[app] {
			continue
		}
		if link, ok := AppLink(app, p); ok {
			links[app] = link
		}
	}
	return links
}

// PaymentPageURL is the public page a payer opens for orderID.
func PaymentPageURL(baseURL, orderID string) string {
	return strings.TrimRight(baseURL, "/") + "/pay/" + url.PathEscape(orderID)
}

// QRCodePNG renders link as a PNG image of size x size pixels.
func QRCodePNG(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}
