package pdf

import (
	"encoding/base64"
	"errors"

	"github.com/skip2/go-qrcode"
)

// QRDataURI encodes content as a PNG QR code usable in an <img src>.
func QRDataURI(content string, size int) (string, error) {
	if content == "" {
		return "", errors.New("qr content is empty")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
