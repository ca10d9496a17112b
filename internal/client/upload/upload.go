// Package upload submits chat attachments to the consultation server.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dkeye/consult/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

const uploadPath = "/api/virtual-consultation/upload"

var ErrInvalidResponse = errors.New("upload response carries no file url")

type Uploader struct {
	BaseURL  string
	UserName string
	HTTP     *http.Client
}

func New(baseURL, userName string) *Uploader {
	return &Uploader{BaseURL: strings.TrimRight(baseURL, "/"), UserName: userName, HTTP: http.DefaultClient}
}

// Upload sends r as a multipart file and returns the URL of the first result.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("userName", u.UserName); err != nil {
				return err
			}
			fw, err := mw.CreateFormFile("file", name)
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, r); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+uploadPath, pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var results []struct {
		FileURL string `json:"fileUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("upload: decode response: %w", err)
	}
	if len(results) == 0 || results[0].FileURL == "" {
		return "", ErrInvalidResponse
	}
	return results[0].FileURL, nil
}

// ChatTypeOf picks how an attachment is shown in chat.
func ChatTypeOf(mt *mimetype.MIME) domain.ChatType {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return domain.ChatImage
		}
	}
	return domain.ChatFile
}
