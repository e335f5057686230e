package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/model"
	"iot-ledger-backend/internal/outcome"
)

// ErrNotConfigured is returned before any network call when no upload token
// is set.
var ErrNotConfigured = errors.New("storage token not configured")

// Attachment is an extra file bundled with the metadata document.
type Attachment struct {
	Name string
	Data []byte
}

// uploadResponse is the relevant part of the storage API reply.
type uploadResponse struct {
	CID string `json:"cid"`
}

// Publisher uploads device metadata to a content-addressed storage endpoint.
type Publisher struct {
	endpoint   string
	token      string
	clientName string
	client     *http.Client
}

// NewPublisher creates a Publisher from the storage configuration.
func NewPublisher(cfg config.StorageConfig) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Publisher{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		clientName: cfg.ClientName,
		client:     &http.Client{Timeout: timeout},
	}
}

// Publish uploads meta and substitutes the fallback CID when the storage
// service fails. A missing token is a configuration error and is returned
// as such instead of falling back.
func (p *Publisher) Publish(ctx context.Context, meta model.DeviceMetadata, files []Attachment) outcome.Result[string] {
	c, err := p.Upload(ctx, meta, files)
	if err == nil {
		return outcome.Success(c)
	}
	if errors.Is(err, ErrNotConfigured) {
		return outcome.Failure[string](err)
	}

	log.Printf("Error uploading metadata, using fallback CID: %v", err)
	fallback, ferr := FallbackCID(meta)
	if ferr != nil {
		return outcome.Failure[string](errors.Join(err, ferr))
	}
	return outcome.Fallback(fallback, err)
}

// Upload publishes meta and its attachments and returns the CID reported by
// the storage service. It makes exactly one attempt.
func (p *Publisher) Upload(ctx context.Context, meta model.DeviceMetadata, files []Attachment) (string, error) {
	if p.token == "" {
		return "", ErrNotConfigured
	}

	doc, err := Serialize(meta)
	if err != nil {
		return "", err
	}

	body, contentType, err := buildMultipart(doc, files)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", contentType)
	if p.clientName != "" {
		req.Header.Set("X-Client", p.clientName)
	}

	log.Printf("Uploading metadata for %q to %s", meta.Name, p.endpoint)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage API error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal upload response: %w", err)
	}
	if _, err := cid.Decode(out.CID); err != nil {
		return "", fmt.Errorf("storage API returned invalid cid %q: %w", out.CID, err)
	}

	log.Printf("Uploaded metadata with CID %s", out.CID)
	return out.CID, nil
}

func buildMultipart(doc []byte, files []Attachment) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	part, err := w.CreateFormFile("file", "metadata.json")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", fmt.Errorf("failed to write metadata part: %w", err)
	}

	for i, f := range files {
		part, err := w.CreateFormFile(fmt.Sprintf("file-%d", i), f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part for %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write part for %q: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return body, w.FormDataContentType(), nil
}
