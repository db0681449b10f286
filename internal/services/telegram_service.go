package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// SettlementNotification describes a booking whose payment moved on-chain or was confirmed.
type SettlementNotification struct {
	BookingID  int64
	PropertyID string
	TxHash     string
	Amount     *decimal.Decimal
	Event      string
}

// NotifySettlement reports a settlement event to the admin chat.
func (s *TelegramService) NotifySettlement(n SettlementNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	amount := "-"
	if n.Amount != nil {
		amount = n.Amount.StringFixed(2)
	}
	property := n.PropertyID
	if property == "" {
		property = "-"
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>Booking:</b> #%d
<b>Property:</b> %s
<b>Amount:</b> %s
<b>Tx:</b> <code>%s</code>
━━━━━━━━━━━━━━━━━━`,
		n.Event,
		n.BookingID,
		property,
		amount,
		n.TxHash,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
