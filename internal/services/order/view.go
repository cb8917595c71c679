package order

import (
	"context"
	"log"
	"time"

	"upilink/internal/domain/upi"
	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
)

// View is the payer-facing projection of an order. CanSubmitUTR and
// RemainingSeconds are computed on every read.
type View struct {
	OrderID          string            `json:"orderId"`
	Amount           string            `json:"amount"`
	MerchantName     string            `json:"merchantName"`
	VPA              string            `json:"vpa"`
	Status           string            `json:"status"`
	ExpiresAt        time.Time         `json:"expiresAt"`
	RemainingSeconds int64             `json:"remainingSeconds"`
	UPIDeepLink      string            `json:"upiDeepLink"`
	AppLinks         map[string]string `json:"appLinks,omitempty"`
	PaymentPageURL   string            `json:"paymentPageUrl"`
	UTRSubmitted     bool              `json:"utrSubmitted"`
	CanSubmitUTR     bool              `json:"canSubmitUTR"`
	Final            bool              `json:"final"`
}

func (s *service) View(ctx context.Context, order *models.Order) (*View, error) {
	now := s.now()
	v := &View{
		OrderID:          order.OrderID,
		Amount:           order.Amount.StringFixed(2),
		MerchantName:     order.MerchantName,
		VPA:              order.VPA,
		Status:           string(order.Status),
		ExpiresAt:        order.ExpiresAt,
		RemainingSeconds: order.RemainingSeconds(now),
		UPIDeepLink:      order.UPIDeepLink,
		PaymentPageURL:   order.PaymentPageURL,
		UTRSubmitted:     order.UTR != nil,
		CanSubmitUTR:     order.CanSubmitUTR(now),
		Final:            order.Status.IsTerminal(),
	}

	// App links only help a payer who can still pay.
	if v.CanSubmitUTR {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			log.Printf("Settings unavailable for order %s view: %v", order.OrderID, err)
		} else {
			v.AppLinks = upi.AppLinks(cfg.Apps(), paymentParams(order))
		}
	}
	return v, nil
}

func (s *service) QRCode(ctx context.Context, orderID string, size int) ([]byte, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanSubmitUTR(s.now()) {
		if order.Status == models.OrderStatusExpired {
			return nil, domainErrors.ErrOrderExpired
		}
		return nil, domainErrors.ErrOrderNotPending
	}

	png, err := upi.QRCodePNG(order.UPIDeepLink, size)
	if err != nil {
		return nil, domainErrors.ErrInternal.Wrap(err)
	}
	return png, nil
}

func paymentParams(order *models.Order) upi.PaymentParams {
	return upi.PaymentParams{
		VPA:          order.VPA,
		MerchantName: order.MerchantName,
		Amount:       order.Amount,
		Note:         upi.NoteFor(order.MerchantName, order.OrderID),
		OrderID:      order.OrderID,
	}
}
