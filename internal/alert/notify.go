package alert

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Order data keys understood by ShowNotification.
const (
	KeyInvoiceID    = "invoice_id"
	KeyCustomerName = "customer_name"
	KeyGrandTotal   = "grand_total"
	KeyItemSummary  = "item_summary"

	// KeyAlertInvoiceID is added to the activation payload.
	KeyAlertInvoiceID = "order_alert_invoice_id"
)

// DefaultNotificationID is the slot used by orders without an identifier.
const DefaultNotificationID int32 = 4010

// DefaultTitle is used when an order carries no customer name.
const DefaultTitle = "Alert"

// DefaultChannel is the order alert channel: critical, bypasses do-not-
// disturb, vibrates, and stays silent because the alarm owns the tone.
var DefaultChannel = Channel{
	ID:          "jarz_order_alerts",
	Name:        "Order Alerts",
	Description: "Urgent alerts for new POS orders",
	Urgency:     UrgencyCritical,
	BypassDND:   true,
	Vibrate:     true,
	Silent:      true,
}

// NotificationID derives the notification slot for an order identifier.
// The hash is the 31-multiplier polynomial over UTF-16 code units with int32
// wraparound, so ids precomputed by the POS backend match. Blank identifiers
// share DefaultNotificationID.
func NotificationID(invoiceID string) int32 {
	if strings.TrimSpace(invoiceID) == "" {
		return DefaultNotificationID
	}
	var h int32
	for _, u := range utf16.Encode([]rune(invoiceID)) {
		h = 31*h + int32(u)
	}
	return h
}

// ShowNotification posts or replaces the alert for the order in data.
func (m *Manager) ShowNotification(data map[string]string) error {
	if m.notifier == nil {
		return nil
	}
	if err := m.ensureChannel(); err != nil {
		return err
	}
	id := NotificationID(data[KeyInvoiceID])
	if err := m.notifier.Notify(id, m.buildNotification(data)); err != nil {
		return fmt.Errorf("alert: notify %d: %w", id, err)
	}
	m.log.Info("notification shown", "id", id, "invoice_id", data[KeyInvoiceID])
	return nil
}

// CancelNotification removes the alert for invoiceID.
func (m *Manager) CancelNotification(invoiceID string) error {
	if m.notifier == nil {
		return nil
	}
	id := NotificationID(invoiceID)
	if err := m.notifier.Cancel(id); err != nil {
		return fmt.Errorf("alert: cancel %d: %w", id, err)
	}
	return nil
}

// ensureChannel creates the channel on first use. A failed attempt is
// retried on the next notification.
func (m *Manager) ensureChannel() error {
	m.channelMu.Lock()
	defer m.channelMu.Unlock()
	if m.channelReady {
		return nil
	}
	if err := m.notifier.CreateChannel(m.channel); err != nil {
		return fmt.Errorf("alert: create channel %s: %w", m.channel.ID, err)
	}
	m.channelReady = true
	return nil
}

func (m *Manager) buildNotification(data map[string]string) Notification {
	title := strings.TrimSpace(data[KeyCustomerName])
	if title == "" {
		title = m.title
	}

	var body strings.Builder
	if total := strings.TrimSpace(data[KeyGrandTotal]); total != "" {
		body.WriteString("Total: ")
		body.WriteString(total)
	}
	if summary := strings.TrimSpace(data[KeyItemSummary]); summary != "" {
		if body.Len() > 0 {
			body.WriteString(" • ")
		}
		body.WriteString(summary)
	}

	payload := make(map[string]string, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[KeyAlertInvoiceID] = data[KeyInvoiceID]

	return Notification{
		ChannelID:  m.channel.ID,
		Title:      title,
		Body:       body.String(),
		Category:   "call",
		Ongoing:    true,
		FullScreen: true,
		Payload:    payload,
	}
}
