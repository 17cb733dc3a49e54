// Package share offers a page reference through the host's share capability,
// falling back to the clipboard and finally to a manual-copy message.
package share

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned by a capability the host does not provide.
	ErrUnavailable = errors.New("share: capability unavailable")
	// ErrCanceled is returned by a NativeSharer when the user dismissed the sheet.
	ErrCanceled = errors.New("share: canceled by user")
)

// Messages shown to the user after a fallback.
const (
	CopiedMessage = "Link copied to clipboard!"
	manualPrefix  = "Unable to share. Please copy the link manually: "
)

// ManualMessage returns the manual-copy message for url.
func ManualMessage(url string) string {
	return manualPrefix + url
}

// Payload is what gets shared.
type Payload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// NativeSharer is the host's share sheet.
type NativeSharer interface {
	Share(ctx context.Context, p Payload) error
}

// Clipboard writes text to the host clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Method is how a share completed.
type Method string

const (
	MethodNative    Method = "native"
	MethodClipboard Method = "clipboard"
	MethodManual    Method = "manual"
	MethodCanceled  Method = "canceled"
)

// Result describes the outcome of Share. Message is empty when nothing needs
// to be shown to the user.
type Result struct {
	Method  Method `json:"method"`
	Message string `json:"message,omitempty"`
	// Err holds the last capability failure, if any.
	Err error `json:"-"`
}

// Share tries native, then clipboard, then produces a manual-copy message.
// A user cancel on the native sheet ends the attempt without fallback. Either
// capability may be nil.
func Share(ctx context.Context, native NativeSharer, clip Clipboard, p Payload) Result {
	var lastErr error
	if native != nil {
		err := native.Share(ctx, p)
		switch {
		case err == nil:
			return Result{Method: MethodNative}
		case errors.Is(err, ErrCanceled):
			return Result{Method: MethodCanceled, Err: err}
		case !errors.Is(err, ErrUnavailable):
			lastErr = err
		}
	}

	if clip != nil {
		err := clip.WriteText(ctx, p.URL)
		if err == nil {
			return Result{Method: MethodClipboard, Message: CopiedMessage, Err: lastErr}
		}
		lastErr = err
	}

	return Result{Method: MethodManual, Message: ManualMessage(p.URL), Err: lastErr}
}
