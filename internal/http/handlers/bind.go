package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/gin-gonic/gin"
)

// Validated is implemented by request bodies that check themselves after
// normalization.
type Validated interface {
	Validate() error
}

// DecodeJSON reads the body into out without validating it, so inputs can
// be normalized first. On failure it writes the 400 and returns false.
func DecodeJSON(ctx *gin.Context, out interface{}) bool {
	dec := json.NewDecoder(ctx.Request.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", parseDecodeError(err))
		return false
	}
	return true
}

// CheckValid runs v.Validate and writes field errors when it fails.
func CheckValid(ctx *gin.Context, v Validated) bool {
	err := v.Validate()
	if err == nil {
		return true
	}

	var verr *incident.ValidationError
	if errors.As(err, &verr) {
		RespondValidation(ctx, verr)
		return false
	}

	RespondBadRequest(ctx, "Invalid request body", gin.H{"reason": err.Error()})
	return false
}

// FieldMessages flattens validation errors for the inline form messages.
func FieldMessages(err error) map[string]string {
	var verr *incident.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}

	out := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		if _, seen := out[f.Field]; !seen {
			out[f.Field] = f.Message
		}
	}
	return out
}

func parseDecodeError(err error) interface{} {
	if errors.Is(err, io.EOF) {
		return gin.H{"json": "empty_body"}
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := strings.TrimSpace(typeError.Field)
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []incident.FieldError{{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeError.Type.String()),
			}},
		}
	}

	// DisallowUnknownFields has no typed error
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		field := strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`)
		return gin.H{
			"json":  "unknown_field",
			"field": field,
			"fields": []incident.FieldError{{
				Field:   field,
				Rule:    "unknown",
				Message: "is not accepted",
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}
