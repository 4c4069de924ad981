// Package simclient talks to the API the way a field device or an operator
// script would. It backs the devicesim command.
package simclient

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-resty/resty/v2"

	"safetywatch/internal/ingest"
)

type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	// Only transport failures and 5xx are worth retrying; a 4xx will not
	// change on the next attempt.
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})

	return &Client{http: client}
}

// Submit posts one telemetry payload, CBOR-encoded when asCBOR is set.
func (c *Client) Submit(ctx context.Context, p ingest.Payload, asCBOR bool) error {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if asCBOR {
		body, err := ingest.EncodeCBOR(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		req.SetHeader("Content-Type", ingest.ContentTypeCBOR).SetBody(body)
	} else {
		req.SetHeader("Content-Type", ingest.ContentTypeJSON).SetBody(p)
	}

	resp, err := req.Post("/api/v1/submit-sensor-data")
	if err != nil {
		return fmt.Errorf("submit %s: %w", p.DeviceID, err)
	}
	return asAPIError(resp)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"login": login, "password": password}).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/v1/auth/login")
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if err := asAPIError(resp); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

type Credential struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SeedResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Credentials struct {
		Supervisors []Credential `json:"supervisors"`
		Workers     []Credential `json:"workers"`
	} `json:"credentials"`
	Details []string `json:"details"`
}

func (c *Client) Seed(ctx context.Context, token string) (SeedResponse, error) {
	var out SeedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/v1/seed-demo-data")
	if err != nil {
		return SeedResponse{}, fmt.Errorf("seed: %w", err)
	}
	if err := asAPIError(resp); err != nil {
		return SeedResponse{}, err
	}
	return out, nil
}

func asAPIError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr.Message == "" {
		apiErr = &APIError{Message: resp.Status()}
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}

// Reading produces a plausible payload for deviceID. Roughly one in twenty
// carries an abnormal value so alert paths get exercised.
func Reading(r *rand.Rand, deviceID string) ingest.Payload {
	hr := 65 + r.Float64()*35
	temp := 36.4 + r.Float64()*1.2
	gas := r.Float64() * 60
	fall := false

	switch r.IntN(20) {
	case 0:
		hr = 125 + r.Float64()*30
	case 1:
		temp = 38.6 + r.Float64()
	case 2:
		gas = 320 + r.Float64()*200
	case 3:
		fall = true
	}

	hr = float64(int(hr))
	temp = float64(int(temp*10)) / 10
	gas = float64(int(gas*10)) / 10
	return ingest.Payload{
		DeviceID:        deviceID,
		HeartRate:       &hr,
		BodyTemperature: &temp,
		GasLevel:        &gas,
		FallDetected:    &fall,
	}
}
