package session

import "errors"

// ErrAlreadyStreaming is returned by Registry.Start while another session
// is Active on the same conversation. The handler maps it to 409.
var ErrAlreadyStreaming = errors.New("a stream is already active for this conversation")
