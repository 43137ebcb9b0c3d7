package collect

import (
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// Response is the normalized outcome of one request. Body holds the raw
// bytes as fetched; Text the decoded form. Data and Document are filled
// only when the request asked for the corresponding parse and it succeeded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Text       string
	// Charset is the name of the encoding the body was decoded with.
	Charset  string
	Data     any
	Document *html.Node
	Request  *Request
}

func (r *Response) ContentType() string {
	if r.Header == nil {
		return ""
	}

	return r.Header.Get("Content-Type")
}

// IsMarkup reports whether the content type indicates an HTML or XML body.
func (r *Response) IsMarkup() bool {
	ct := strings.ToLower(r.ContentType())

	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

// NewInlineResponse builds the synthetic response used for descriptors that
// supply their body inline. The content type is markup by default so the
// document pipeline treats it like a fetched page.
func NewInlineResponse(req *Request) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(req.HTML),
		Request:    req,
	}
}
