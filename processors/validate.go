// Package processors ships a small library of ready-made processors
// grounded in the gateway's own validation/transport stack, so the
// handler chain's dependency surface has somewhere to live beyond the
// core engine's deliberately opaque callables.
package processors

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

var validate = validator.New()

// Validate builds a Filter that decodes the context content into a
// fresh value of the same shape as target (via a JSON round-trip) and
// runs struct-tag validation against it. A validation failure drops
// the message and attaches the field errors as processor detail on the
// live context's "validationErrors" property, rather than failing the
// whole pipeline.
func Validate(id string, target any) handler.Processor {
	return handler.NewFilter(id, func(ctx *message.Context) (bool, error) {
		shape := newLike(target)
		if err := ctx.ContentAs(shape); err != nil {
			return false, fmt.Errorf("validate %s: %w", id, err)
		}

		if err := validate.Struct(shape); err != nil {
			verrs, ok := err.(validator.ValidationErrors)
			if !ok {
				return false, fmt.Errorf("validate %s: %w", id, err)
			}
			ctx.SetProperty("validationErrors", fieldErrors(verrs))
			return false, nil
		}
		return true, nil
	})
}

func fieldErrors(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return out
}

// newLike allocates a fresh zero value with the same concrete type as
// target, which must be a pointer (e.g. &MyStruct{}).
func newLike(target any) any {
	t := reflect.TypeOf(target)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}
