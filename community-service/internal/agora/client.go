package agora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/pkg/log"
)

// Recording status codes reported by query; 4 and 5 mean the recorder is running.
const (
	StatusRecording = 4
	StatusFinished  = 5
)

const maxBodyLog = 2048

var (
	ErrMissingResourceID = errors.New("vendor returned no resource id")
	ErrMissingSID        = errors.New("vendor returned no sid")
	ErrBreakerOpen       = errors.New("recording vendor circuit open")
)

// APIError is a non-2xx answer from the vendor.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agora %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// StorageConfig tells the recorder where to upload.
type StorageConfig struct {
	Vendor    int
	Region    int
	Bucket    string
	AccessKey string
	SecretKey string
}

// Config configures the cloud-recording client.
type Config struct {
	AppID          string
	CustomerID     string
	CustomerSecret string
	BaseURL        string
	Timeout        time.Duration
	MaxFailures    uint32
	OpenTimeout    time.Duration
	Storage        StorageConfig
}

// Client talks to the cloud-recording REST API in mixed mode.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a new cloud-recording client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.agora.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	maxFailures := cfg.MaxFailures
	settings := gobreaker.Settings{
		Name:        "agora-recording",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about vendor health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := log.L()
			l.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

type acquireRequest struct {
	Cname         string                 `json:"cname"`
	UID           string                 `json:"uid"`
	ClientRequest map[string]interface{} `json:"clientRequest"`
}

type acquireResponse struct {
	ResourceID string `json:"resourceId"`
}

// Acquire reserves a recording resource for channel.
func (c *Client) Acquire(ctx context.Context, channel string, uid uint32) (string, error) {
	body := acquireRequest{
		Cname:         channel,
		UID:           strconv.FormatUint(uint64(uid), 10),
		ClientRequest: map[string]interface{}{},
	}

	raw, err := c.do(ctx, "acquire", http.MethodPost, c.appPath("/cloud_recording/acquire"), body)
	if err != nil {
		return "", err
	}

	var resp acquireResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("agora acquire: decode response: %w", err)
	}
	if resp.ResourceID == "" {
		return "", ErrMissingResourceID
	}
	return resp.ResourceID, nil
}

type recordingConfig struct {
	MaxIdleTime     int `json:"maxIdleTime"`
	StreamTypes     int `json:"streamTypes"`
	ChannelType     int `json:"channelType"`
	VideoStreamType int `json:"videoStreamType"`
}

type storageConfig struct {
	Vendor         int      `json:"vendor"`
	Region         int      `json:"region"`
	Bucket         string   `json:"bucket"`
	AccessKey      string   `json:"accessKey"`
	SecretKey      string   `json:"secretKey"`
	FileNamePrefix []string `json:"fileNamePrefix"`
}

type startClientRequest struct {
	RecordingConfig recordingConfig `json:"recordingConfig"`
	StorageConfig   storageConfig   `json:"storageConfig"`
}

type startRequest struct {
	Cname         string             `json:"cname"`
	UID           string             `json:"uid"`
	ClientRequest startClientRequest `json:"clientRequest"`
}

type startResponse struct {
	ResourceID string `json:"resourceId"`
	SID        string `json:"sid"`
}

// Start begins a mixed-stream audio recording uploaded under fileNamePrefix.
func (c *Client) Start(ctx context.Context, resourceID, channel string, uid uint32, fileNamePrefix []string) (string, error) {
	body := startRequest{
		Cname: channel,
		UID:   strconv.FormatUint(uint64(uid), 10),
		ClientRequest: startClientRequest{
			RecordingConfig: recordingConfig{
				MaxIdleTime:     300,
				StreamTypes:     2,
				ChannelType:     1,
				VideoStreamType: 0,
			},
			StorageConfig: storageConfig{
				Vendor:         c.cfg.Storage.Vendor,
				Region:         c.cfg.Storage.Region,
				Bucket:         c.cfg.Storage.Bucket,
				AccessKey:      c.cfg.Storage.AccessKey,
				SecretKey:      c.cfg.Storage.SecretKey,
				FileNamePrefix: fileNamePrefix,
			},
		},
	}

	path := c.appPath(fmt.Sprintf("/cloud_recording/resourceid/%s/mode/mix/start", resourceID))
	raw, err := c.do(ctx, "start", http.MethodPost, path, body)
	if err != nil {
		return "", err
	}

	var resp startResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("agora start: decode response: %w", err)
	}
	if resp.SID == "" {
		l := log.Ctx(ctx)
		l.Error().Str(log.FieldResourceID, resourceID).Str("body", truncate(raw)).Msg("start response without sid")
		return "", ErrMissingSID
	}
	return resp.SID, nil
}

// FileList accepts both shapes the vendor uses: a single string, or an array of file objects.
type FileList []string

func (f *FileList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*f = nil
		} else {
			*f = FileList{single}
		}
		return nil
	}

	var objects []struct {
		FileName string `json:"fileName"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return fmt.Errorf("unsupported fileList shape: %w", err)
	}
	out := make(FileList, 0, len(objects))
	for _, o := range objects {
		if o.FileName != "" {
			out = append(out, o.FileName)
		}
	}
	*f = out
	return nil
}

// StopResult is the vendor answer to stop.
type StopResult struct {
	ResourceID      string
	SID             string
	FileList        FileList
	UploadingStatus string
}

type stopClientRequest struct {
	AsyncStop bool `json:"async_stop"`
}

type stopRequest struct {
	Cname         string            `json:"cname"`
	UID           string            `json:"uid"`
	ClientRequest stopClientRequest `json:"clientRequest"`
}

type serverResponse struct {
	Status          int      `json:"status"`
	FileList        FileList `json:"fileList"`
	UploadingStatus string   `json:"uploadingStatus"`
}

type recordingResponse struct {
	ResourceID     string         `json:"resourceId"`
	SID            string         `json:"sid"`
	ServerResponse serverResponse `json:"serverResponse"`
}

// Stop asks the recorder to stop and upload asynchronously.
func (c *Client) Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (*StopResult, error) {
	body := stopRequest{
		Cname:         channel,
		UID:           strconv.FormatUint(uint64(uid), 10),
		ClientRequest: stopClientRequest{AsyncStop: true},
	}

	path := c.appPath(fmt.Sprintf("/cloud_recording/resourceid/%s/sid/%s/mode/mix/stop", resourceID, sid))
	raw, err := c.do(ctx, "stop", http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	var resp recordingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("agora stop: decode response: %w", err)
	}
	return &StopResult{
		ResourceID:      resp.ResourceID,
		SID:             resp.SID,
		FileList:        resp.ServerResponse.FileList,
		UploadingStatus: resp.ServerResponse.UploadingStatus,
	}, nil
}

// QueryResult is the vendor answer to query.
type QueryResult struct {
	Status   int
	FileList FileList
}

// Started reports whether the recorder is running or already finished uploading.
func (q *QueryResult) Started() bool {
	return q.Status == StatusRecording || q.Status == StatusFinished
}

// Query reports the state of a running recording. The uid is not part of the
// vendor path; it is kept for symmetry with the other calls.
func (c *Client) Query(ctx context.Context, resourceID, sid, channel string, uid uint32) (*QueryResult, error) {
	path := c.appPath(fmt.Sprintf("/cloud_recording/resourceid/%s/sid/%s/mode/mix/query", resourceID, sid))
	raw, err := c.do(ctx, "query", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp recordingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("agora query: decode response: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldChannel, channel).
		Uint32("uid", uid).
		Int(log.FieldVendorStatus, resp.ServerResponse.Status).
		Msg("recording status queried")

	return &QueryResult{
		Status:   resp.ServerResponse.Status,
		FileList: resp.ServerResponse.FileList,
	}, nil
}

func (c *Client) appPath(suffix string) string {
	return fmt.Sprintf("%s/v1/apps/%s%s", c.cfg.BaseURL, c.cfg.AppID, suffix)
}

// do runs one vendor call through the circuit breaker.
func (c *Client) do(ctx context.Context, op, method, url string, body interface{}) ([]byte, error) {
	start := time.Now()
	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, url, body)
	})
	metrics.VendorLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		l := log.Ctx(ctx)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.VendorRequests.WithLabelValues(op, "rejected").Inc()
			l.Warn().Str("op", op).Msg("vendor call rejected by circuit breaker")
			return nil, fmt.Errorf("agora %s: %w", op, ErrBreakerOpen)
		}
		metrics.VendorRequests.WithLabelValues(op, "error").Inc()
		l.Error().Err(err).Str("op", op).Msg("vendor call failed")
		return nil, err
	}

	metrics.VendorRequests.WithLabelValues(op, "ok").Inc()
	return raw, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, url string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("agora %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("agora %s: create request: %w", op, err)
	}
	req.SetBasicAuth(c.cfg.CustomerID, c.cfg.CustomerSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agora %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("agora %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: truncate(raw)}
	}
	return raw, nil
}

func truncate(b []byte) string {
	if len(b) > maxBodyLog {
		return string(b[:maxBodyLog]) + "..."
	}
	return string(b)
}
