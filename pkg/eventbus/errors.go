package eventbus

import "errors"

// ErrConsumerGone is returned by Emit-family methods once Close has been
// called, signalling the producer to abort cooperatively at its next
// suspension point.
var ErrConsumerGone = errors.New("eventbus: consumer gone")
