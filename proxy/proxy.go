package proxy

import (
	"fmt"
	"net/url"
	"sync/atomic"
)

// Rotator hands out values from a list in round-robin order. The counter is
// advanced by a single atomic step per call, so concurrent dispatches each
// observe a distinct position.
type Rotator struct {
	index uint32
}

// Next returns the next value of the list, or "" for an empty list.
func (r *Rotator) Next(values []string) string {
	if len(values) == 0 {
		return ""
	}
	i := atomic.AddUint32(&r.index, 1) - 1

	return values[i%uint32(len(values))]
}

// Validate parses every proxy URL in the list and reports the first bad one.
func Validate(proxyURLs ...string) error {
	if len(proxyURLs) == 0 {
		return fmt.Errorf("proxy URL list empty")
	}
	for _, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy %q missing scheme or host", raw)
		}
	}

	return nil
}
