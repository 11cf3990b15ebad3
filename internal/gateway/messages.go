package gateway

import (
	"context"
	"net/http"
	"net/url"
)

// SendResult is the gateway's acknowledgement of an accepted message.
type SendResult struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	Status           string `json:"status,omitempty"`
	MessageTimestamp int64  `json:"messageTimestamp,omitempty"`
}

// SendText sends a plain text message through the instance.
func (c *Client) SendText(ctx context.Context, instance, number, text string) (*SendResult, error) {
	payload := map[string]interface{}{
		"number": number,
		"text":   text,
	}
	var out SendResult
	if err := c.do(ctx, "send text", http.MethodPost, "/message/sendText/"+url.PathEscape(instance), instance, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Media describes a media attachment to send by URL.
type Media struct {
	URL      string
	MimeType string
	Caption  string
	Filename string
}

// SendMedia sends a media message through the instance. The media itself
// is fetched by the gateway from the given URL.
func (c *Client) SendMedia(ctx context.Context, instance, number string, media Media) (*SendResult, error) {
	payload := map[string]interface{}{
		"number":    number,
		"mediatype": mediaKind(media.MimeType),
		"mimetype":  media.MimeType,
		"media":     media.URL,
	}
	if media.Caption != "" {
		payload["caption"] = media.Caption
	}
	if media.Filename != "" {
		payload["fileName"] = media.Filename
	}
	var out SendResult
	if err := c.do(ctx, "send media", http.MethodPost, "/message/sendMedia/"+url.PathEscape(instance), instance, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mediaKind(mimeType string) string {
	switch {
	case len(mimeType) >= 6 && mimeType[:6] == "image/":
		return "image"
	case len(mimeType) >= 6 && mimeType[:6] == "audio/":
		return "audio"
	case len(mimeType) >= 6 && mimeType[:6] == "video/":
		return "video"
	default:
		return "document"
	}
}
