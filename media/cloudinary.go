// Package media uploads recorded voice notes to Cloudinary using the
// unsigned upload endpoint (single preset, single destination).
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"securelc/errs"
)

// DefaultEndpoint is the production Cloudinary API base URL.
const DefaultEndpoint = "https://api.cloudinary.com/v1_1"

// Uploader posts local audio files to the media host. One attempt per
// call: no retry, no chunking, no resumability, no size validation.
type Uploader struct {
	endpoint     string
	cloudName    string
	uploadPreset string
	httpc        *http.Client
	log          *zap.SugaredLogger
}

// NewUploader creates an uploader for one cloud and one unsigned preset.
func NewUploader(endpoint, cloudName, uploadPreset string, logger *zap.SugaredLogger) *Uploader {
	return &Uploader{
		endpoint:     endpoint,
		cloudName:    cloudName,
		uploadPreset: uploadPreset,
		httpc:        &http.Client{Timeout: 2 * time.Minute},
		log:          logger,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts the audio file at localPath and returns its public URL.
// Audio clips ride Cloudinary's video pipeline. An in-flight upload
// runs to completion or hard failure; there is no abort.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty file path: %w", errs.ErrInvalidArgument)
	}
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, errs.ErrNotFound)
	}
	defer file.Close()

	body, contentType, err := encodeForm(file, filepath.Base(localPath), u.uploadPreset)
	if err != nil {
		return "", fmt.Errorf("encode upload form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/video/upload", u.endpoint, u.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	u.log.Infof("☁️  Uploading %s to Cloudinary...", filepath.Base(localPath))
	resp, err := u.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("media host unreachable: %w", errs.ErrNetwork)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode < 400 {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if resp.StatusCode >= 400 || out.SecureURL == "" {
		msg := out.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return "", fmt.Errorf("upload rejected (%s): %w", msg, errs.ErrUpstream)
	}

	u.log.Infof("✅ Upload successful: %s", out.SecureURL)
	return out.SecureURL, nil
}

// encodeForm streams the multipart body through a pipe so the clip is
// never held in memory whole.
func encodeForm(file io.Reader, name, preset string) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := writer.WriteField("upload_preset", preset); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	return pr, writer.FormDataContentType(), nil
}
