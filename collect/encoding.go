package collect

import (
	"mime"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// sniffLen bounds how far into the body we look for an embedded charset
// declaration.
const sniffLen = 1024

var charsetPattern = regexp.MustCompile(`(?i)charset\s*=\s*["']?([-\w]+)`)

// DetermineEncoding resolves the charset of a body by priority: the
// caller-forced name, then a content-type header declaration, then a
// charset declaration embedded in the body, then UTF-8. A nil encoding
// means the body is already UTF-8 and needs no transform.
func DetermineEncoding(contentType string, body []byte, forced string) (encoding.Encoding, string) {
	for _, label := range []string{forced, headerCharset(contentType), bodyCharset(body)} {
		if label == "" {
			continue
		}
		if e, name := charset.Lookup(label); e != nil {
			if name == "utf-8" {
				return nil, name
			}
			return e, name
		}
	}

	return nil, "utf-8"
}

// DecodeBody decodes raw bytes with the given encoding. A nil encoding
// returns the body unchanged.
func DecodeBody(body []byte, e encoding.Encoding) (string, error) {
	if e == nil {
		return string(body), nil
	}
	decoded, _, err := transform.Bytes(e.NewDecoder(), body)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}

func headerCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	return params["charset"]
}

func bodyCharset(body []byte) string {
	if len(body) > sniffLen {
		body = body[:sniffLen]
	}
	m := charsetPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}

	return strings.ToLower(string(m[1]))
}

// IsTextual reports whether a content type names a body we decode to text.
// An absent content type counts as textual.
func IsTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, hint := range []string{"html", "xml", "json", "javascript", "urlencoded"} {
		if strings.Contains(ct, hint) {
			return true
		}
	}

	return false
}
