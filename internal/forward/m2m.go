// Package forward delivers decoded records to the downstream oneM2M
// endpoint as content-instance resources.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

const (
	contentInstanceType = "application/json;ty=4"
	envelopeKey         = "m2m:cin"
	contentKey          = "con"
)

// DeliveryError reports a failed delivery attempt: transport error,
// timeout, or any status other than 201 Created.
type DeliveryError struct {
	Status int
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed: unexpected status %d", e.Status)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// M2MSender posts records to a oneM2M CSE container. The per-request
// timeout bounds how long a delivery attempt can hold the outbound
// queue's tick.
type M2MSender struct {
	client *http.Client
	url    string
	origin string
}

func NewM2MSender(url, origin string, timeout time.Duration) *M2MSender {
	return &M2MSender{
		client: &http.Client{Timeout: timeout},
		url:    url,
		origin: origin,
	}
}

// Send posts one record as {"m2m:cin": {"con": {<fields>}}}. Success is
// exactly HTTP 201.
func (s *M2MSender) Send(ctx context.Context, r *model.Record) error {
	body, err := json.Marshal(map[string]any{
		envelopeKey: map[string]any{
			contentKey: r.Fields(),
		},
	})
	if err != nil {
		return &DeliveryError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", contentInstanceType)
	req.Header.Set("X-M2M-RI", uuid.NewString())
	req.Header.Set("X-M2M-Origin", s.origin)

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return &DeliveryError{Status: resp.StatusCode}
	}
	return nil
}
