// Package blinko is a minimal client for the Blinko notes API.
package blinko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ubuntu/decorate"
)

// Attachment describes an uploaded file as Blinko reports it back.
// Size and Type are optional in the upload response and forwarded as-is.
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
}

// Client talks to a single Blinko instance with a fixed API key.
type Client struct {
	base string
	key  string
	http *http.Client
}

// New returns a client for the given instance. A trailing slash on baseURL
// is tolerated.
func New(baseURL, apiKey string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		key:  apiKey,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadResponse struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// UploadFile streams r to Blinko's file upload endpoint under the given name.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (att Attachment, err error) {
	defer decorate.OnError(&err, "could not upload %q", name)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Attachment{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/file/upload", &body)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Attachment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Attachment{}, apiError(resp)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return Attachment{}, fmt.Errorf("invalid upload response: %w", err)
	}
	// The API may answer 200 with an error payload. Treat a response without
	// the essentials as a failed upload, like a non-2xx status.
	if ur.FilePath == "" || ur.FileName == "" {
		return Attachment{}, fmt.Errorf("upload response missing filePath or fileName")
	}

	return Attachment{
		Name: ur.FileName,
		Path: ur.FilePath,
		Size: ur.Size,
		Type: ur.Type,
	}, nil
}

type notePayload struct {
	Content     string       `json:"content"`
	Type        int          `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

// CreateNote upserts a note with the given content and attachments.
func (c *Client) CreateNote(ctx context.Context, content string, attachments []Attachment) (err error) {
	defer decorate.OnError(&err, "could not create note")

	if attachments == nil {
		attachments = []Attachment{}
	}
	payload, err := json.Marshal(notePayload{Content: content, Attachments: attachments})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/note/upsert", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("blinko returned %s", resp.Status)
	}
	return fmt.Errorf("blinko returned %s: %s", resp.Status, msg)
}
