package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/pathforge/pathforge/core"
)

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// VideoMetadata looks up a video's title and channel through oEmbed.
type VideoMetadata struct {
	fetch     *fetcher
	oEmbedURL string
}

// NewVideoMetadata creates the video_metadata tool.
func NewVideoMetadata(f *fetcher, oEmbedURL string) *VideoMetadata {
	if oEmbedURL == "" {
		oEmbedURL = "https://www.youtube.com/oembed"
	}
	return &VideoMetadata{fetch: f, oEmbedURL: oEmbedURL}
}

func (v *VideoMetadata) Descriptor() core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:         VideoMetadataName,
		Description:  "Looks up a video's title, channel and thumbnail",
		InputSchema:  urlInputSchema,
		OutputSchema: enrichmentOutputSchema,
		Idempotent:   true,
		Tags:         []string{"enrichment", "video"},
	}
}

func (v *VideoMetadata) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rawURL, err := stringInput(input, "url")
	if err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(v.oEmbedURL)
	if err != nil {
		return nil, core.NewToolError("BAD_ENDPOINT", core.CategoryInternal, err)
	}
	q := endpoint.Query()
	q.Set("url", rawURL)
	q.Set("format", "json")
	endpoint.RawQuery = q.Encode()

	body, err := v.fetch.get(ctx, endpoint.String())
	if err != nil {
		return nil, err
	}
	var resp oEmbedResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, core.NewToolError("BAD_RESPONSE", core.CategoryServiceError, fmt.Errorf("decode oEmbed response: %w", err))
	}

	description := ""
	if resp.AuthorName != "" {
		description = "Video by " + resp.AuthorName
		if resp.ProviderName != "" {
			description += " on " + resp.ProviderName
		}
	}
	return map[string]interface{}{
		"url":           rawURL,
		"kind":          KindVideo,
		"title":         resp.Title,
		"description":   description,
		"author":        resp.AuthorName,
		"provider":      resp.ProviderName,
		"thumbnail_url": resp.ThumbnailURL,
	}, nil
}
