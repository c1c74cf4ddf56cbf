package imageprocessor

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// MaxImageSize caps a single submitted image.
const MaxImageSize = 10 << 20

var supportedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// Image is a submitted photo prepared for the classifiers. It is the opaque
// image reference the pipeline passes from stage to stage.
type Image struct {
	Data     []byte
	MIMEType string
	SHA1     string
}

// Ref returns a short stable handle for logs and reports.
func (img Image) Ref() string {
	if len(img.SHA1) > 12 {
		return img.SHA1[:12]
	}
	return img.SHA1
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Encode validates raw bytes and prepares them for transport. declaredMIME
// may be empty; the type is then sniffed from the content. Failures wrap
// waste.ErrEncoding.
func Encode(data []byte, declaredMIME string) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", waste.ErrEncoding)
	}
	if len(data) > MaxImageSize {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit %d", waste.ErrEncoding, len(data), MaxImageSize)
	}
	mime := PickMIME(declaredMIME, data)
	if !supportedMIME[mime] {
		return Image{}, fmt.Errorf("%w: unsupported content type %q", waste.ErrEncoding, mime)
	}
	sum := sha1.Sum(data)
	return Image{Data: data, MIMEType: mime, SHA1: hex.EncodeToString(sum[:])}, nil
}

// DecodeBase64 accepts raw base64 or a data: URI and returns the bytes plus
// the MIME type from the URI prefix, if any.
func DecodeBase64(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx > 0 {
			meta := s[len("data:"):idx]
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				hint = meta[:semi]
			} else {
				hint = meta
			}
			s = s[idx+1:]
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hint, nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: bad base64: %v", waste.ErrEncoding, err)
	}
	return b, hint, nil
}

// PickMIME prefers an explicit image type and otherwise sniffs the bytes.
func PickMIME(explicit string, data []byte) string {
	exp := strings.ToLower(strings.TrimSpace(explicit))
	if semi := strings.IndexByte(exp, ';'); semi >= 0 {
		exp = strings.TrimSpace(exp[:semi])
	}
	if exp == "image/jpg" {
		exp = "image/jpeg"
	}
	if strings.HasPrefix(exp, "image/") {
		return exp
	}
	if len(data) > 0 {
		sniffed := http.DetectContentType(data)
		if semi := strings.IndexByte(sniffed, ';'); semi >= 0 {
			sniffed = sniffed[:semi]
		}
		return sniffed
	}
	return "application/octet-stream"
}
