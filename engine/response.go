package engine

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/admariner/crawler/collect"
)

// handle classifies a transport outcome: success, retryable failure, or
// terminal failure.
func (c *Crawler) handle(req *collect.Request, resp *collect.Response, err error, done func()) {
	if err == nil {
		c.finalize(req, resp, done)
		return
	}
	if req.Retries > 0 {
		req.Retries--
		c.logger.Info("transport error, retrying",
			zap.String("id", req.ID),
			zap.String("url", req.URL),
			zap.Int("remaining", req.Retries),
			zap.Error(err),
		)
		// A retry is a continuation of the attempt it replaces: it keeps
		// the slot it already holds and goes back to the executor without
		// re-entering the limiter queue or its interval gate.
		time.AfterFunc(req.RetryInterval, func() {
			c.execute(req, done)
		})
		return
	}
	c.fail(req, err, done)
}

// fail delivers a terminal failure and releases the slot.
func (c *Crawler) fail(req *collect.Request, err error, done func()) {
	c.logger.Error("request failed",
		zap.String("id", req.ID),
		zap.String("url", req.URL),
		zap.Error(err),
	)
	if req.Callback != nil {
		req.Callback(err, nil, done)
	}
	done()
}

// finalize normalizes a successful response: charset decode, the optional
// structured-data parse, the optional document parse, then delivery. A
// failed decode or parse is logged and degrades the response, never fails
// the request. When the request carries a callback, the callback owns the
// release; without one the slot is released here.
func (c *Crawler) finalize(req *collect.Request, resp *collect.Response, done func()) {
	switch {
	case len(resp.Body) == 0:
		resp.Text = ""
	case req.ForceDecode || req.Encoding != "" || collect.IsTextual(resp.ContentType()):
		enc, name := collect.DetermineEncoding(resp.ContentType(), resp.Body, req.Encoding)
		resp.Charset = name
		text, err := collect.DecodeBody(resp.Body, enc)
		if err != nil {
			c.logger.Warn("charset decode failed, keeping raw body",
				zap.String("id", req.ID),
				zap.String("charset", name),
				zap.Error(err),
			)
			text = string(resp.Body)
		}
		resp.Text = text
	default:
		resp.Text = string(resp.Body)
	}

	if req.JSON && resp.Text != "" {
		var data any
		if err := json.Unmarshal([]byte(resp.Text), &data); err != nil {
			c.logger.Warn("structured-data parse failed, keeping text",
				zap.String("id", req.ID),
				zap.Error(err),
			)
		} else {
			resp.Data = data
		}
	}

	if req.ParseDocument {
		if resp.IsMarkup() {
			doc, err := c.parser.Parse(resp.Text)
			if err != nil {
				c.logger.Warn("document parse failed, delivering without document",
					zap.String("id", req.ID),
					zap.Error(err),
				)
			} else {
				resp.Document = doc
			}
		} else {
			c.logger.Debug("content type is not markup, skipping document parse",
				zap.String("id", req.ID),
				zap.String("content_type", resp.ContentType()),
			)
		}
	}

	if req.Callback != nil {
		req.Callback(nil, resp, done)
		return
	}
	done()
}
