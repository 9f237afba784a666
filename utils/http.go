package utils

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

type HTTPClientOption func(*http.Client)

func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *http.Client) {
		c.Timeout = timeout
	}
}

func NewHTTPClient(opts ...HTTPClientOption) *http.Client {
	c := &http.Client{
		Timeout: defaultHTTPTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func DefaultHTTPClient() *http.Client {
	return NewHTTPClient()
}
