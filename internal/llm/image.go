package llm

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const maxImageBytes = 15 * 1024 * 1024

var allowedImageMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// fetchImage downloads an uploaded report image and normalizes its MIME
// type. Kakao CDN links are short-lived, so this runs right before the
// vision call.
func fetchImage(ctx context.Context, httpClient *http.Client, imageURL string) (*ImageData, error) {
	log.Printf("[Image Fetch] GET %s", imageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	req.Header.Set("User-Agent", "asthma-bot/1.0 (+server)")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("image too large: %d bytes (>15MB)", resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image too large: over 15MB")
	}

	rawType := resp.Header.Get("Content-Type")
	if rawType == "" {
		rawType = "image/jpeg"
	}
	if i := strings.IndexByte(rawType, ';'); i >= 0 {
		rawType = rawType[:i]
	}
	mimeType := normalizeMIMEType(rawType, imageURL)
	log.Printf("[Image Fetch] content-type=%s (raw=%s), bytes=%d", mimeType, rawType, len(data))

	if !allowedImageMIMEs[mimeType] {
		return nil, fmt.Errorf("unsupported image mime after normalization: %s", mimeType)
	}

	return &ImageData{MIMEType: mimeType, Data: data}, nil
}

// normalizeMIMEType maps vendor quirks onto the three supported types,
// falling back to the URL extension for generic content types.
func normalizeMIMEType(originalMIME, url string) string {
	mime := strings.ToLower(strings.TrimSpace(originalMIME))
	switch mime {
	case "image/jpg", "image/pjpg":
		return "image/jpeg"
	case "image/x-png":
		return "image/png"
	case "", "application/octet-stream":
		lower := strings.ToLower(url)
		switch {
		case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
			return "image/jpeg"
		case strings.HasSuffix(lower, ".png"):
			return "image/png"
		case strings.HasSuffix(lower, ".webp"):
			return "image/webp"
		}
		return "image/jpeg"
	}
	return mime
}
