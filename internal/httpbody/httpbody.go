// Package httpbody builds the outbound JSON body for a dispatch request,
// following the default-vs-custom rule from the wire contract: a caller-
// supplied body is sent verbatim and never has a model merged into it.
package httpbody

import (
	"encoding/json"

	"github.com/blazeapi/blaze/internal/record"
)

// Build returns the JSON body to send for req against an endpoint whose
// configured model identifier is endpointModel (empty if unconfigured).
//
// If req.Body is set, it is returned unchanged - model is never injected
// into a caller-supplied body (§9 Design Note). Otherwise the default
// completion-shaped body is built from req.Input, with "model" merged at
// top level only when endpointModel is non-empty.
func Build(req *record.Request, endpointModel string) (json.RawMessage, error) {
	if len(req.Body) > 0 {
		return req.Body, nil
	}

	content := ""
	if req.Input != nil {
		content = *req.Input
	}

	body := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
	}
	if endpointModel != "" {
		body["model"] = endpointModel
	}

	return json.Marshal(body)
}
