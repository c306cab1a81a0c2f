package filter

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/mikey/antispam/internal/core"
)

// wordDecoder handles RFC 2047 encoded words in any charset the HTML
// index knows.
var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// decodeEncodedHeader decodes an RFC 2047 encoded header value. Plain
// values pass through unchanged.
func decodeEncodedHeader(value string) (string, error) {
	if !strings.Contains(value, "=?") {
		return value, nil
	}
	return wordDecoder.DecodeHeader(value)
}

// EmailFromMessage builds the classification view of a parsed message:
// decoded subject, text body, and the full header map.
func EmailFromMessage(msg *mail.Message, sender string, now time.Time) (*core.Email, error) {
	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}

	body, err := extractTextFromMessage(msg)
	if err != nil {
		return nil, err
	}

	headers := make(map[string][]string, len(msg.Header))
	for key, values := range msg.Header {
		headers[key] = values
	}

	return core.NewEmail(sender, subject, body, headers, now), nil
}

// extractTextFromMessage pulls the text content out of a message. For
// multipart messages it prefers text/plain parts, falling back to
// text/html rendered to plain text. Unreadable structure degrades to the
// raw body rather than an error.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return readTextPart(msg.Body, textproto.MIMEHeader(msg.Header))
	}

	boundary, ok := params["boundary"]
	if !ok {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	var plain, html bytes.Buffer
	collectParts(multipart.NewReader(msg.Body, boundary), &plain, &html, 0)

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	if html.Len() > 0 {
		return html2text.HTML2Text(html.String()), nil
	}
	return "[No text content found in multipart message]", nil
}

const maxMultipartDepth = 3

func collectParts(mr *multipart.Reader, plain, html *bytes.Buffer, depth int) {
	if depth > maxMultipartDepth {
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return
		}

		partType := strings.ToLower(part.Header.Get("Content-Type"))
		switch {
		case strings.Contains(partType, "multipart/"):
			if _, params, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil {
				if boundary, ok := params["boundary"]; ok {
					collectParts(multipart.NewReader(part, boundary), plain, html, depth+1)
				}
			}
		case strings.Contains(partType, "text/plain"), partType == "":
			if text, err := readTextPart(part, part.Header); err == nil {
				plain.WriteString(text)
				plain.WriteString("\n")
			}
		case strings.Contains(partType, "text/html"):
			if text, err := readTextPart(part, part.Header); err == nil {
				html.WriteString(text)
				html.WriteString("\n")
			}
		}
		// Attachments and anything else are skipped.
	}
}

// readTextPart reads a body applying its Content-Transfer-Encoding.
func readTextPart(r io.Reader, header textproto.MIMEHeader) (string, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	data, err := io.ReadAll(r)
	if err != nil && len(data) == 0 {
		return "", err
	}
	return string(data), nil
}
