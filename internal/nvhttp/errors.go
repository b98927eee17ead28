// SPDX-License-Identifier: MIT

package nvhttp

import "fmt"

// Well-known protocol status codes.
const (
	// StatusCertRejected is returned by hosts when the client certificate
	// is not trusted over HTTPS; callers fall back to plain HTTP.
	StatusCertRejected = 401

	// StatusQuitNotOwner is synthesized when a quit request succeeds but
	// the session keeps running because another client owns it.
	StatusQuitNotOwner = 599

	// StatusAudioCaptureMissing replaces the malformed -1/"Invalid"
	// response some host versions emit when audio capture is broken.
	StatusAudioCaptureMissing = 418
)

const audioCaptureHint = "Missing audio capture device. Reinstalling RemotePlayHost should resolve this error."

// StatusError carries a non-200 status_code from a host response envelope.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host returned status %d: %s", e.Code, e.Message)
}
