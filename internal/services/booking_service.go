package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/stayescrow/internal/models"
)

// BookingServiceClient pushes status changes back to the booking service that
// owns the bookings table.
type BookingServiceClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBookingServiceClient(baseURL string) *BookingServiceClient {
	return &BookingServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
}

type bookingStatusUpdate struct {
	Status models.BookingStatus `json:"status"`
}

// NotifyBookingStatus sends PUT {base}/api/bookings/{id}/status. It is a no-op
// when no booking service is configured.
func (c *BookingServiceClient) NotifyBookingStatus(ctx context.Context, bookingID int64, status models.BookingStatus) error {
	if c == nil || c.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(bookingStatusUpdate{Status: status})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/bookings/%d/status", c.baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("booking-service status update for booking %d: %w", bookingID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("booking-service returned status %d for booking %d: %s", resp.StatusCode, bookingID, strings.TrimSpace(string(detail)))
	}

	log.Printf("[BookingService] booking %d marked %s", bookingID, status)
	return nil
}
