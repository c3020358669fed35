package qr

import (
	"errors"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

var errEmptyPayload = errors.New("empty payload url")

// Config fixes the visual surface of every generated code: pixel size,
// quiet-zone border, and a two-tone color scheme.
type Config struct {
	Size   int
	Margin int
	Dark   color.Color
	Light  color.Color
}

func DefaultConfig() Config {
	return Config{
		Size:   256,
		Margin: 1,
		Dark:   color.Black,
		Light:  color.White,
	}
}

// Encode renders a payload URL as PNG bytes. A failure here is per-item;
// callers record it and move on to the next item.
func Encode(payloadURL string, cfg Config) ([]byte, error) {
	if payloadURL == "" {
		return nil, errEmptyPayload
	}
	code, err := qrcode.New(payloadURL, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	if cfg.Dark != nil {
		code.ForegroundColor = cfg.Dark
	}
	if cfg.Light != nil {
		code.BackgroundColor = cfg.Light
	}
	code.DisableBorder = cfg.Margin <= 0

	size := cfg.Size
	if size <= 0 {
		size = DefaultConfig().Size
	}
	return code.PNG(size)
}
