package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hushapp/hush/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in response.Envelope, so
// huma routes and plain chi routes share one wire format.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if err, ok := v.(error); ok {
		env := response.Envelope{Error: err.Error()}
		if apiErr, ok := v.(*APIError); ok {
			env.Error = apiErr.Message
			env.Code = apiErr.Code
		} else if code, convErr := strconv.Atoi(status); convErr == nil {
			env.Code = statusToCode(code)
		}
		return env, nil
	}
	return response.Envelope{Success: true, Data: v}, nil
}
