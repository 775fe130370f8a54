package requestfakes

import (
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-core/request"
)

var _ request.Request = (*FakeRequest)(nil)

// FakeRequest is an in-memory request.Request for tests.
type FakeRequest struct {
	Headers     map[string]string
	QueryParams map[string]string
	IP          string

	lock       sync.RWMutex
	attributes map[string]any
}

func NewFakeRequest() *FakeRequest {
	return &FakeRequest{
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
		attributes:  make(map[string]any),
	}
}

func (r *FakeRequest) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (r *FakeRequest) ClientIP() string {
	return r.IP
}

func (r *FakeRequest) QueryParam(name string) string {
	return r.QueryParams[name]
}

func (r *FakeRequest) Attribute(key string) any {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.attributes[key]
}

func (r *FakeRequest) SetAttribute(key string, value any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.attributes[key] = value
}
