// Package record defines the request and outcome types that flow from the
// input reader through the dispatcher to the output sinks.
package record

import "encoding/json"

// Request is one parsed line of the JSON-lines input stream.
type Request struct {
	// Input is the main input text for the default LLM body shape.
	Input *string `json:"input,omitempty"`

	// Body, when set, is sent verbatim as the HTTP request body.
	Body json.RawMessage `json:"body,omitempty"`

	// Headers are merged into the outbound request's headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Metadata holds any other top-level keys from the input line. It is
	// not written to either output sink.
	Metadata map[string]json.RawMessage `json:"-"`

	// LineNumber is the 1-based position of this record in the input file.
	LineNumber int `json:"-"`
}

// UnmarshalJSON captures recognized fields plus any passthrough metadata.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["input"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		r.Input = &s
		delete(raw, "input")
	}
	if v, ok := raw["body"]; ok {
		r.Body = v
		delete(raw, "body")
	}
	if v, ok := raw["headers"]; ok {
		var h map[string]string
		if err := json.Unmarshal(v, &h); err != nil {
			return err
		}
		r.Headers = h
		delete(raw, "headers")
	}
	r.Metadata = raw
	return nil
}

// DisplayInput returns a log-friendly truncated view of the request,
// mirroring request.rs::display_input.
func (r *Request) DisplayInput() string {
	switch {
	case r.Input != nil:
		s := *r.Input
		if len(s) > 50 {
			return s[:50] + "..."
		}
		return s
	case len(r.Body) > 0:
		return "[custom body]"
	default:
		return "[empty]"
	}
}

// ResponseMetadata describes how a successful response was produced.
type ResponseMetadata struct {
	Endpoint  string `json:"endpoint"`
	LatencyMs int64  `json:"latency_ms"`
	Attempts  int    `json:"attempts"`
}

// SuccessRecord is the success-sink wire shape from §6.
type SuccessRecord struct {
	Input    *string          `json:"input,omitempty"`
	Response json.RawMessage  `json:"response"`
	Metadata ResponseMetadata `json:"metadata"`
}

// FailureRecord is the failure-sink wire shape from §6. LineNumber is
// omitted when zero via its omitempty tag.
type FailureRecord struct {
	Input      *string         `json:"input,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Error      string          `json:"error"`
	StatusCode *int            `json:"status_code,omitempty"`
	LineNumber int             `json:"line_number,omitempty"`
	Attempts   int             `json:"attempts"`
}

// Outcome is the tagged union of a terminal Success or Failure for one
// request, produced by the retrying sender and routed by the dispatcher.
type Outcome struct {
	Success *SuccessRecord
	Failure *FailureRecord
}

// IsSuccess reports whether this outcome terminated successfully.
func (o Outcome) IsSuccess() bool {
	return o.Success != nil
}
