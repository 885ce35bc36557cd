package parser

import "errors"

// Recoverable parse conditions. Parse never returns these; they are collected in
// Message.Warnings so callers can inspect what was repaired.
var (
	ErrMalformedMessage   = errors.New("malformed message: no header/body separator")
	ErrUnsupportedCharset = errors.New("unsupported charset")
	ErrDecodeFallback     = errors.New("transfer decoding failed")
	ErrMimeDepthExceeded  = errors.New("mime nesting depth exceeded")
	ErrMissingBoundary    = errors.New("multipart without boundary")
)

// ErrEmptyMessage is returned by Parse when there is nothing to parse.
var ErrEmptyMessage = errors.New("empty message")

// diagnostics collects recovered errors during a single parse pass.
type diagnostics struct {
	errs []error
}

func (d *diagnostics) add(err error) {
	if d == nil || err == nil {
		return
	}
	d.errs = append(d.errs, err)
}
