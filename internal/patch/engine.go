// Package patch applies JSON merge patches to versioned entities.
//
// An Engine is bound to one entity type and its Schema. Apply never mutates
// its input and never returns a partially patched entity: a failed patch
// hands back the entity it was given together with a message naming the
// offending field.
//
//	engine := patch.New[models.Connector](models.ConnectorSchema, patch.WithValidator(models.ValidateConnector))
//	res := engine.Apply(ctx, current, body)
//	if res.Failed {
//	    return res.Message
//	}
package patch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Result is the outcome of one Apply call. Entity is always usable: on
// failure it is the pre-patch entity.
type Result[T any] struct {
	Entity  T
	ETag    string
	Changed bool
	Failed  bool
	Message string
}

// Engine applies merge patches to entities of type T.
type Engine[T any] struct {
	schema   Schema
	validate func(T) error
}

// Option configures an Engine.
type Option[T any] func(*Engine[T])

// WithValidator runs fn against the patched entity. A returned error fails
// the patch with the error's message.
func WithValidator[T any](fn func(T) error) Option[T] {
	return func(e *Engine[T]) {
		e.validate = fn
	}
}

// New creates an Engine for schema.
func New[T any](schema Schema, opts ...Option[T]) *Engine[T] {
	e := &Engine[T]{schema: schema}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema the engine enforces.
func (e *Engine[T]) Schema() Schema {
	return e.schema
}

// Apply merges doc into current. The current time for an implicit
// timestamp advance comes from requestcontext.Now.
func (e *Engine[T]) Apply(ctx context.Context, current T, doc []byte) Result[T] {
	original, err := json.Marshal(current)
	if err != nil {
		return Result[T]{Entity: current, Failed: true, Message: fmt.Sprintf("The %s could not be encoded!", e.schema.Entity)}
	}
	etag, err := ETag(current)
	if err != nil {
		return Result[T]{Entity: current, Failed: true, Message: fmt.Sprintf("The %s could not be encoded!", e.schema.Entity)}
	}
	fail := func(msg string) Result[T] {
		return Result[T]{Entity: current, ETag: etag, Failed: true, Message: msg}
	}

	if err := ctx.Err(); err != nil {
		return fail("The request was cancelled!")
	}
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return fail("Invalid JSON merge patch document!")
	}
	patchDoc := gjson.ParseBytes(doc)

	if msg := e.checkImmutable(patchDoc); msg != "" {
		return fail(msg)
	}

	merged, msg := e.merge(original, patchDoc, "", "")
	if msg != "" {
		return fail(msg)
	}

	next, msg := e.decode(merged)
	if msg != "" {
		return fail(msg)
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return fail(fmt.Sprintf("The %s could not be encoded!", e.schema.Entity))
	}

	explicit := e.schema.Timestamp != "" && patchDoc.Get(escapePath(e.schema.Timestamp)).Exists()
	changed := !e.sameIgnoringTimestamp(original, encoded)

	switch {
	case explicit:
		changed = changed || !sameJSON(
			gjson.GetBytes(original, escapePath(e.schema.Timestamp)).Raw,
			gjson.GetBytes(encoded, escapePath(e.schema.Timestamp)).Raw,
		)
	case changed && e.schema.Timestamp != "":
		now := domain.NewTimestamp(requestcontext.Now(ctx)).String()
		stamped, err := sjson.SetBytes(encoded, escapePath(e.schema.Timestamp), now)
		if err != nil {
			return fail(fmt.Sprintf("The %s could not be encoded!", e.schema.Entity))
		}
		if next, msg = e.decode(stamped); msg != "" {
			return fail(msg)
		}
	}

	if !changed {
		return Result[T]{Entity: current, ETag: etag}
	}

	if e.validate != nil {
		if err := e.validate(next); err != nil {
			return fail(err.Error())
		}
	}

	nextTag, err := ETag(next)
	if err != nil {
		return fail(fmt.Sprintf("The %s could not be encoded!", e.schema.Entity))
	}
	return Result[T]{Entity: next, ETag: nextTag, Changed: true}
}

// checkImmutable rejects the patch if it names any immutable field, even
// with the current value.
func (e *Engine[T]) checkImmutable(doc gjson.Result) string {
	fields := make([]string, 0, len(e.schema.Immutable))
	for f := range e.schema.Immutable {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		path := fieldPath(field)
		if doc.Get(path).Exists() {
			return fmt.Sprintf("Patching the '%s' of a %s is not allowed!", e.schema.Label(field), e.schema.Entity)
		}
	}
	return ""
}

// merge walks one level of the patch document. Objects merge recursively,
// null removes, everything else (arrays included) replaces.
func (e *Engine[T]) merge(target []byte, doc gjson.Result, field, path string) ([]byte, string) {
	var (
		out     = target
		failure string
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		name := join(field, key.String(), ".")
		p := join(path, escapePath(key.String()), ".")

		var err error
		switch {
		case value.Type == gjson.Null:
			if e.schema.isMandatory(name) {
				failure = fmt.Sprintf("The '%s' of a %s must not be removed!", e.schema.Label(name), e.schema.Entity)
				return false
			}
			out, err = sjson.DeleteBytes(out, p)
		case value.IsObject() && gjson.GetBytes(out, p).IsObject():
			out, failure = e.merge(out, value, name, p)
			return failure == ""
		default:
			out, err = sjson.SetRawBytes(out, p, []byte(value.Raw))
		}
		if err != nil {
			failure = fmt.Sprintf("Invalid value for the '%s' of a %s!", e.schema.Label(name), e.schema.Entity)
			return false
		}
		return true
	})
	return out, failure
}

// decode turns the merged document back into T. Type errors are reported
// against the field that caused them.
func (e *Engine[T]) decode(raw []byte) (T, string) {
	var next T
	err := json.Unmarshal(raw, &next)
	if err == nil {
		return next, ""
	}

	field := e.culprit(raw, err)
	if field == "" {
		return next, fmt.Sprintf("Invalid %s: %s", e.schema.Entity, err.Error())
	}
	return next, fmt.Sprintf("Invalid value for the '%s' of a %s!", e.schema.Label(field), e.schema.Entity)
}

// culprit finds the field behind a decode error. encoding/json names the
// field for type mismatches; custom unmarshalers do not, so each top-level
// field is then decoded on its own against an otherwise empty document.
func (e *Engine[T]) culprit(raw []byte, err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field
	}

	var found string
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		single, serr := sjson.SetRawBytes([]byte(`{}`), escapePath(key.String()), []byte(value.Raw))
		if serr != nil {
			return true
		}
		var one T
		if json.Unmarshal(single, &one) != nil {
			found = key.String()
			return false
		}
		return true
	})
	return found
}

func (e *Engine[T]) sameIgnoringTimestamp(a, b []byte) bool {
	if e.schema.Timestamp != "" {
		p := escapePath(e.schema.Timestamp)
		a, _ = sjson.DeleteBytes(slices.Clone(a), p)
		b, _ = sjson.DeleteBytes(slices.Clone(b), p)
	}
	return sameJSON(string(a), string(b))
}

// fieldPath converts a dotted schema field into a gjson path.
func fieldPath(field string) string {
	parts := strings.Split(field, ".")
	for i, p := range parts {
		parts[i] = escapePath(p)
	}
	return strings.Join(parts, ".")
}
