package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/socialgravity/socialgravity/internal/transport"
)

// Edge function names.
const (
	FnStartSimulation        = "start_simulation"
	FnGetSimulation          = "get_simulation"
	FnSetVideoURL            = "set_video_url"
	FnTranscribeVideo        = "transcribe_video"
	FnRequestVideoConversion = "request_video_conversion"
)

// Table names read or written directly.
const (
	TableVideos      = "videos"
	TableSimulations = "simulations"
)

// Video tracking record statuses.
const (
	VideoStatusProcessing = "processing"
	VideoStatusReady      = "ready"
	VideoStatusError      = "error"
)

var ErrEmptySimulationID = errors.New("backend returned no simulation_id")

// VideoJob is one row of the video conversion tracking table.
type VideoJob struct {
	ID           string `json:"id"`
	SimulationID string `json:"simulation_id"`
	RawPath      string `json:"raw_path"`
	MP4Path      string `json:"mp4_path,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SimulationState is the subset of a simulation row polled during analysis.
type SimulationState struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ConversionAck is the trigger's answer. Success must be explicitly true.
type ConversionAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Transport is the subset of *transport.Client the backend calls need.
type Transport interface {
	Invoke(ctx context.Context, name string, body, out any) error
	Upload(ctx context.Context, bucket, path string, r io.Reader, contentType string) error
	PublicURL(bucket, path string) string
	Insert(ctx context.Context, table string, row any) error
	Select(ctx context.Context, table string, query url.Values, out any) error
}

var _ Transport = (*transport.Client)(nil)

// Client exposes the backend operations the lifecycle and dashboard need.
type Client struct {
	t      Transport
	bucket string
	userID string
}

func New(t Transport, bucket, userID string) *Client {
	return &Client{t: t, bucket: bucket, userID: userID}
}

func (c *Client) StartSimulation(ctx context.Context, audiencePrompt string) (string, error) {
	req := map[string]string{"audience_prompt": audiencePrompt}
	if c.userID != "" {
		req["user_id"] = c.userID
	}

	var resp struct {
		SimulationID string `json:"simulation_id"`
	}
	if err := c.t.Invoke(ctx, FnStartSimulation, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.SimulationID) == "" {
		return "", ErrEmptySimulationID
	}
	return resp.SimulationID, nil
}

// GetSimulation returns the raw aggregate {simulation, personas, reactions}.
func (c *Client) GetSimulation(ctx context.Context, simulationID string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.t.Invoke(ctx, FnGetSimulation, map[string]string{"simulation_id": simulationID}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) SetVideoURL(ctx context.Context, simulationID, videoURL string, durationSeconds float64) error {
	req := map[string]any{
		"simulation_id":          simulationID,
		"video_url":              videoURL,
		"video_duration_seconds": durationSeconds,
	}
	return c.t.Invoke(ctx, FnSetVideoURL, req, nil)
}

func (c *Client) TranscribeVideo(ctx context.Context, simulationID string) error {
	return c.t.Invoke(ctx, FnTranscribeVideo, map[string]string{"simulation_id": simulationID}, nil)
}

func (c *Client) RequestVideoConversion(ctx context.Context, videoID string) (ConversionAck, error) {
	var ack ConversionAck
	if err := c.t.Invoke(ctx, FnRequestVideoConversion, map[string]string{"video_id": videoID}, &ack); err != nil {
		return ConversionAck{}, err
	}
	return ack, nil
}

func (c *Client) UploadVideo(ctx context.Context, path string, r io.Reader, contentType string) error {
	return c.t.Upload(ctx, c.bucket, path, r, contentType)
}

func (c *Client) PublicURL(path string) string {
	return c.t.PublicURL(c.bucket, path)
}

func (c *Client) InsertVideoJob(ctx context.Context, job VideoJob) error {
	if job.Status == "" {
		job.Status = VideoStatusProcessing
	}
	return c.t.Insert(ctx, TableVideos, job)
}

// VideoJob returns nil, nil when the row does not exist yet.
func (c *Client) VideoJob(ctx context.Context, videoID string) (*VideoJob, error) {
	var rows []VideoJob
	q := url.Values{
		"id":     {"eq." + videoID},
		"select": {"id,simulation_id,raw_path,mp4_path,status,error_message"},
	}
	if err := c.t.Select(ctx, TableVideos, q, &rows); err != nil {
		return nil, fmt.Errorf("read video job %s: %w", videoID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SimulationStatus returns nil, nil when the row is not visible.
func (c *Client) SimulationStatus(ctx context.Context, simulationID string) (*SimulationState, error) {
	var rows []SimulationState
	q := url.Values{
		"id":     {"eq." + simulationID},
		"select": {"id,status,error_message"},
	}
	if err := c.t.Select(ctx, TableSimulations, q, &rows); err != nil {
		return nil, fmt.Errorf("read simulation %s: %w", simulationID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
