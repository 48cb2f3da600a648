package agent

import "github.com/vkotenko/go-web-pilot/internal/schema"

// StatusEvent is reported to the observer surface after every dispatch and
// observation.
type StatusEvent struct {
	Status  schema.Status `json:"status"`
	Message string        `json:"message"`
	Action  schema.Action `json:"action,omitempty"`
}

// Observer receives run progress. Both callbacks are optional and are
// invoked from the loop goroutine; they must not block.
type Observer struct {
	// OnStatus fires after every dispatching/observing transition.
	OnStatus func(StatusEvent)
	// OnStream receives incremental model output when streaming is
	// enabled. Display-only: extraction always uses the complete reply.
	OnStream func(chunk string)
}

func (o Observer) status(ev StatusEvent) {
	if o.OnStatus != nil {
		o.OnStatus(ev)
	}
}

func (o Observer) stream(chunk string) {
	if o.OnStream != nil {
		o.OnStream(chunk)
	}
}
