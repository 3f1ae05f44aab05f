package source

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Prober checks whether an HTTP stream endpoint answers without decoding any video
type Prober struct {
	client *resty.Client
}

func NewProber(timeout time.Duration) *Prober {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetDoNotParseResponse(true)
	return &Prober{client: client}
}

// Reachable issues a GET and closes the body immediately; MJPEG endpoints never end the response.
func (p *Prober) Reachable(ctx context.Context, url string) bool {
	resp, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("stream_probe_failed")
		return false
	}
	if body := resp.RawBody(); body != nil {
		_ = body.Close()
	}
	return resp.StatusCode() > 0 && resp.StatusCode() < http.StatusInternalServerError
}
