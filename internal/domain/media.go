package domain

import (
	"bytes"
	"encoding/json"
)

// DownloadRequest is the body of POST /api/download
type DownloadRequest struct {
	URL string `json:"url"`
}

// UnmarshalJSON accepts any JSON value for url. Absent, null, false, 0 and ""
// leave URL empty; other non-string values keep their JSON text so they reach
// the resolver instead of being reported as missing.
func (r *DownloadRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL json.RawMessage `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.URL = urlText(raw.URL)
	return nil
}

func urlText(raw json.RawMessage) string {
	var v interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
	case float64:
		if t == 0 {
			return ""
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ResolverResult is what a resolver returns for a post.
// Only URLList is inspected by the proxy; the rest is passed through.
type ResolverResult struct {
	ResultsNumber int            `json:"results_number,omitempty"`
	URLList       []string       `json:"url_list"`
	PostInfo      *PostInfo      `json:"post_info,omitempty"`
	MediaDetails  []MediaDetails `json:"media_details,omitempty"`
}

// HasMedia reports whether the result carries at least one media URL
func (r *ResolverResult) HasMedia() bool {
	return r != nil && len(r.URLList) > 0
}

// PostInfo describes the post that owns the media
type PostInfo struct {
	OwnerUsername string `json:"owner_username"`
	OwnerFullname string `json:"owner_fullname"`
	IsVerified    bool   `json:"is_verified"`
	IsPrivate     bool   `json:"is_private"`
	Likes         int64  `json:"likes"`
	IsAd          bool   `json:"is_ad"`
	Caption       string `json:"caption"`
}

// MediaType is the kind of a single media item
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Dimensions is the pixel size of a media item
type Dimensions struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// MediaDetails describes one media item of a post
type MediaDetails struct {
	Type           MediaType  `json:"type"`
	Dimensions     Dimensions `json:"dimensions"`
	URL            string     `json:"url"`
	VideoViewCount int64      `json:"video_view_count,omitempty"`
	Thumbnail      string     `json:"thumbnail,omitempty"`
}

// DownloadResponse is the success body of POST /api/download
type DownloadResponse struct {
	Response *ResolverResult `json:"response"`
}

// ErrorResponse is the failure body of every route
type ErrorResponse struct {
	Error string `json:"error"`
}
