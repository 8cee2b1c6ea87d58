package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldsync/internal/model"
)

// ObjectStorage uploads photo payloads to the remote object store.
//
// Paths are deterministic functions of the record identity, so a retried
// upload overwrites the same object with the same bytes - upload is idempotent
// by construction and needs no "already sent" bookkeeping.
type ObjectStorage struct {
	endpoint  string // upload endpoint, objects PUT at {endpoint}/{path}
	publicURL string // public base, references read at {publicURL}/{path}
	token     string
	client    *http.Client
}

// StorageConfig holds the object storage parameters.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
	Token     string `yaml:"token"`
}

// NewObjectStorage creates a client for the remote object store.
func NewObjectStorage(cfg StorageConfig) *ObjectStorage {
	return &ObjectStorage{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		token:     cfg.Token,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload stores data at the given path, overwriting any previous object, and
// returns the publicly resolvable reference.
func (o *ObjectStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, o.endpoint+"/"+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("upload %s: build request: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Upsert", "true")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s: status %d: %s", path, resp.StatusCode, body)
	}

	return o.publicURL + "/" + path, nil
}

// AttendancePhotoPath is the deterministic object path for an attendance or
// location record photo: {user}/{recordId}.jpg.
func AttendancePhotoPath(userID, recordID string) string {
	return fmt.Sprintf("%s/%s.jpg", userID, recordID)
}

// FollowUpPhotoPath is the deterministic object path for a follow-up photo:
// {user}/{sessionId}_seg_{slot}.jpg.
func FollowUpPhotoPath(userID, sessionID string, slot model.EvidenceSlot) string {
	return fmt.Sprintf("%s/%s_seg_%d.jpg", userID, sessionID, int(slot))
}
