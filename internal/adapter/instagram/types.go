package instagram

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

const typenameSidecar = "XDTGraphSidecar"

// queryResponse is the GraphQL envelope
type queryResponse struct {
	Data struct {
		Media *shortcodeMedia `json:"xdt_shortcode_media"`
	} `json:"data"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// shortcodeMedia is a post, or one child of a carousel post
type shortcodeMedia struct {
	Typename       string            `json:"__typename"`
	Shortcode      string            `json:"shortcode"`
	IsVideo        bool              `json:"is_video"`
	DisplayURL     string            `json:"display_url"`
	VideoURL       string            `json:"video_url"`
	VideoViewCount int64             `json:"video_view_count"`
	Dimensions     domain.Dimensions `json:"dimensions"`
	IsAd           bool              `json:"is_ad"`
	Owner          *struct {
		Username   string `json:"username"`
		FullName   string `json:"full_name"`
		IsVerified bool   `json:"is_verified"`
		IsPrivate  bool   `json:"is_private"`
	} `json:"owner"`
	PreviewLike *struct {
		Count int64 `json:"count"`
	} `json:"edge_media_preview_like"`
	Caption *struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Children *struct {
		Edges []struct {
			Node shortcodeMedia `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

func encodeVariables(shortcode string) (string, error) {
	vars := map[string]interface{}{
		"shortcode":               shortcode,
		"fetch_tagged_user_count": nil,
		"hoisted_comment_id":      nil,
		"hoisted_reply_id":        nil,
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("failed to encode variables: %w", err)
	}
	return string(b), nil
}

func decodeQueryResponse(r io.Reader) (*shortcodeMedia, error) {
	var resp queryResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Data.Media == nil {
		return nil, domain.ErrMediaNotFound
	}
	return resp.Data.Media, nil
}

// toResult builds the resolver result from a post
func (m *shortcodeMedia) toResult() *domain.ResolverResult {
	urls := []string{}
	details := []domain.MediaDetails{}

	items := []*shortcodeMedia{m}
	if m.Typename == typenameSidecar && m.Children != nil {
		items = items[:0]
		for i := range m.Children.Edges {
			items = append(items, &m.Children.Edges[i].Node)
		}
	}

	for _, item := range items {
		details = append(details, item.details())
		if item.IsVideo {
			urls = append(urls, item.VideoURL)
		} else {
			urls = append(urls, item.DisplayURL)
		}
	}

	return &domain.ResolverResult{
		ResultsNumber: len(urls),
		URLList:       urls,
		PostInfo:      m.postInfo(),
		MediaDetails:  details,
	}
}

func (m *shortcodeMedia) details() domain.MediaDetails {
	if m.IsVideo {
		return domain.MediaDetails{
			Type:           domain.MediaTypeVideo,
			Dimensions:     m.Dimensions,
			URL:            m.VideoURL,
			VideoViewCount: m.VideoViewCount,
			Thumbnail:      m.DisplayURL,
		}
	}
	return domain.MediaDetails{
		Type:       domain.MediaTypeImage,
		Dimensions: m.Dimensions,
		URL:        m.DisplayURL,
	}
}

func (m *shortcodeMedia) postInfo() *domain.PostInfo {
	info := &domain.PostInfo{IsAd: m.IsAd}
	if m.Owner != nil {
		info.OwnerUsername = m.Owner.Username
		info.OwnerFullname = m.Owner.FullName
		info.IsVerified = m.Owner.IsVerified
		info.IsPrivate = m.Owner.IsPrivate
	}
	if m.PreviewLike != nil {
		info.Likes = m.PreviewLike.Count
	}
	if m.Caption != nil && len(m.Caption.Edges) > 0 {
		info.Caption = m.Caption.Edges[0].Node.Text
	}
	return info
}
