package videoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/internal/core"
)

const videosPath = "/v1/videos"

// Client talks to the remote asynchronous video-generation API. It
// implements core.Executor: create, poll to completion, download.
type Client struct {
	BaseURL   string
	APIKey    string
	OrgID     string
	ProjectID string

	httpClient *http.Client
	log        zerolog.Logger
}

func New(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log,
	}
}

type jobResource struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	Model       string    `json:"model"`
	Seconds     string    `json:"seconds"`
	Size        string    `json:"size"`
	CreatedAt   int64     `json:"created_at"`
	CompletedAt int64     `json:"completed_at"`
	Error       *jobError `json:"error"`
}

type jobError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Execute runs the full create+poll+download sequence for one job.
func (c *Client) Execute(ctx context.Context, req core.ExecRequest) (core.ExecResult, error) {
	var created *jobResource
	var err error
	switch req.Kind {
	case core.KindEdit:
		created, err = c.createEdit(ctx, req)
	default:
		created, err = c.createVideo(ctx, req)
	}
	if err != nil {
		return core.ExecResult{}, err
	}
	c.log.Debug().Int("job", req.Index).Str("request_id", created.ID).Msg("remote job queued")

	final, err := c.waitForCompletion(ctx, created.ID, req.PollInterval, req.MaxPollAttempts)
	if err != nil {
		return core.ExecResult{}, err
	}

	if err := c.download(ctx, final.ID, req.OutputPath); err != nil {
		return core.ExecResult{}, err
	}

	seconds, _ := strconv.ParseFloat(final.Seconds, 64)
	return core.ExecResult{
		OutputPath:   req.OutputPath,
		RemoteURL:    fmt.Sprintf("%s%s/%s/content", c.BaseURL, videosPath, final.ID),
		VideoSeconds: seconds,
		RequestID:    final.ID,
	}, nil
}

// createVideo submits a generation or image-to-video job as a multipart
// request. A local image reference is streamed as a file part; an image URL
// is passed as a form field.
func (c *Client) createVideo(ctx context.Context, req core.ExecRequest) (*jobResource, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"prompt":  req.Job.Prompt,
		"model":   req.Model,
		"seconds": strconv.Itoa(req.Seconds),
	}
	if req.Job.Resolution != "" {
		fields["size"] = req.Job.Resolution
	}
	if req.Job.AspectRatio != "" {
		fields["aspect_ratio"] = req.Job.AspectRatio
	}
	if req.Job.ImageURL != "" {
		fields["input_reference_url"] = req.Job.ImageURL
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}

	if req.Job.ImagePath != "" {
		if err := attachReference(writer, req.Job.ImagePath); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+videosPath, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return c.doJob(httpReq)
}

// createEdit submits an edit job against an existing remote video.
func (c *Client) createEdit(ctx context.Context, req core.ExecRequest) (*jobResource, error) {
	payload := map[string]string{
		"prompt":    req.Job.Prompt,
		"video_url": req.Job.VideoURL,
	}
	if req.Model != "" {
		payload["model"] = req.Model
	}
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+videosPath+"/edits", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.doJob(httpReq)
}

func attachReference(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reference: %w", err)
	}
	defer file.Close()

	mimeType, err := detectReferenceMIME(file)
	if err != nil {
		return fmt.Errorf("reference file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind reference: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf("form-data; name=%q; filename=%q", "input_reference", filepath.Base(path)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy reference: %w", err)
	}
	return nil
}

var referenceMIMEs = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/png":  "image/png",
	"image/webp": "image/webp",
}

func detectReferenceMIME(file *os.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read reference header: %w", err)
	}
	detected := http.DetectContentType(buf[:n])
	if i := strings.Index(detected, ";"); i != -1 {
		detected = detected[:i]
	}
	if canonical, ok := referenceMIMEs[strings.TrimSpace(strings.ToLower(detected))]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unsupported reference type %s", detected)
}

// doJob sends a create request and decodes the queued job resource.
func (c *Client) doJob(req *http.Request) (*jobResource, error) {
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, readAPIError(resp.Body))
	}
	var job jobResource
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, errors.New("response missing job ID")
	}
	return &job, nil
}

// waitForCompletion polls the job until it reaches a terminal status or the
// attempt ceiling is exhausted.
func (c *Client) waitForCompletion(ctx context.Context, jobID string, interval time.Duration, maxAttempts int) (*jobResource, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		job, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(job.Status) {
		case "completed":
			return job, nil
		case "failed", "canceled", "cancelled", "rejected", "expired":
			if job.Error != nil {
				return nil, fmt.Errorf("remote job %s: %s", job.Status, job.Error.Message)
			}
			return nil, fmt.Errorf("remote job %s", job.Status)
		}
		c.log.Debug().Str("request_id", jobID).Str("status", job.Status).Float64("progress", job.Progress).Msg("polling")
	}
	return nil, fmt.Errorf("poll attempts exhausted after %d checks", maxAttempts)
}

func (c *Client) getJob(ctx context.Context, jobID string) (*jobResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s/%s", c.BaseURL, videosPath, jobID), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, readAPIError(resp.Body))
	}
	var job jobResource
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// download fetches the rendered video to outputPath, writing through a
// temporary file so a partial download never clobbers the destination.
func (c *Client) download(ctx context.Context, jobID, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s/%s/content", c.BaseURL, videosPath, jobID), nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Accept", "video/mp4")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, readAPIError(resp.Body))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmpPath := outputPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.OrgID != "" {
		req.Header.Set("OpenAI-Organization", c.OrgID)
	}
	if c.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.ProjectID)
	}
}

// readAPIError extracts a usable message from an error response body.
func readAPIError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return err.Error()
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "unknown error"
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err == nil {
		if errBlock, ok := parsed["error"].(map[string]any); ok {
			if msg, ok := errBlock["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return trimmed
}
