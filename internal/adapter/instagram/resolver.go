// Package instagram resolves Instagram post URLs to direct media URLs
// through Instagram's public GraphQL endpoint.
package instagram

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
	"github.com/vertextoedge/instagram-proxy/internal/port"
)

// Path segments that precede a post shortcode
var postPathTags = []string{"p", "reel", "reels", "tv"}

// Resolver implements port.Resolver for Instagram posts, reels and tv
type Resolver struct {
	client *Client
	logger *zap.Logger
}

// Ensure Resolver implements port.Resolver
var _ port.Resolver = (*Resolver)(nil)

// NewResolver creates a new Resolver
func NewResolver(client *Client, logger *zap.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger,
	}
}

// Resolve returns the media URLs of the post at postURL
func (r *Resolver) Resolve(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	if isShareLink(postURL) {
		target, err := r.client.followShareLink(ctx, postURL)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("followed share link", zap.String("from", postURL), zap.String("to", target))
		postURL = target
	}

	shortcode, err := Shortcode(postURL)
	if err != nil {
		return nil, err
	}

	media, err := r.client.queryShortcodeMedia(ctx, shortcode)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post %s: %w", shortcode, err)
	}

	return media.toResult(), nil
}

// Shortcode extracts the post shortcode from a post, reel or tv URL
func Shortcode(postURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(postURL))
	if err != nil {
		return "", domain.ErrInvalidPostURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, segment := range segments {
		if !isPostTag(segment) || i+1 >= len(segments) {
			continue
		}
		if code := segments[i+1]; code != "" {
			return code, nil
		}
	}

	return "", domain.ErrInvalidPostURL
}

func isPostTag(segment string) bool {
	for _, tag := range postPathTags {
		if segment == tag {
			return true
		}
	}
	return false
}

func isShareLink(postURL string) bool {
	u, err := url.Parse(postURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/share/")
}
