package download

import (
	"net/url"
	"strings"

	"github.com/ytget/yt-converter/internal/model"
)

// Client-facing validation messages
const (
	MsgMissingParams = "Missing URL or format parameter"
	MsgInvalidFormat = "Format must be mp3 or mp4"
	MsgInvalidURL    = "URL must be an absolute http or https address"
)

// ValidateRequest checks a conversion request before any side effect.
func ValidateRequest(rawURL, rawFormat string) (string, model.Format, error) {
	const op = "download.validate"

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.TrimSpace(rawFormat) == "" {
		return "", "", model.NewError(model.KindInvalidRequest, op, MsgMissingParams, nil)
	}

	format, err := model.ParseFormat(rawFormat)
	if err != nil {
		return "", "", model.NewError(model.KindInvalidRequest, op, MsgInvalidFormat, err)
	}

	if err := ValidateURL(rawURL); err != nil {
		return "", "", err
	}
	return rawURL, format, nil
}

// ValidateURL accepts only absolute http(s) URLs with a host, so the value
// can never be read as a command line option.
func ValidateURL(rawURL string) error {
	const op = "download.validate"
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.NewError(model.KindInvalidRequest, op, MsgInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewError(model.KindInvalidRequest, op, MsgInvalidURL, nil)
	}
	return nil
}
