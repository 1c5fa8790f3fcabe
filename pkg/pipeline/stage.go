package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// Stage is one step of a pipeline.
//
// Execute receives the output of the previous stage (the seed for the first
// one) and the context shared by the whole run. OnFailure is called by the
// pipeline before the error of Execute is reported upward, so a stage can
// signal hardware.
type Stage interface {
	Name() string
	Execute(ctx context.Context, input any, run *domain.Context) (any, error)
	OnFailure(ctx context.Context, run *domain.Context, err error)
	DeclaredParameters() []Param
}

// Param describes one configurable stage parameter.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParamsOf lists the parameters declared by a config struct. The name comes
// from the mapstructure tag, the description from the desc tag and the default
// from the current field value. Squashed embedded structs are flattened.
func ParamsOf(cfg any) []Param {
	return paramsOf(reflect.Indirect(reflect.ValueOf(cfg)))
}

func paramsOf(v reflect.Value) []Param {
	t := v.Type()
	var params []Param
	for i := range t.NumField() {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if opts == "squash" && f.Type.Kind() == reflect.Struct {
			params = append(params, paramsOf(v.Field(i))...)
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		params = append(params, Param{
			Name:        name,
			Type:        typeName(f.Type),
			Default:     defaultString(v.Field(i)),
			Description: f.Tag.Get("desc"),
		})
	}
	return params
}

func typeName(t reflect.Type) string {
	switch {
	case t.String() == "time.Duration":
		return "duration"
	case t.Kind() == reflect.Slice:
		return "list"
	}
	return t.Kind().String()
}

func defaultString(v reflect.Value) string {
	if v.Kind() == reflect.Slice {
		out := ""
		for i := range v.Len() {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprint(v.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(v.Interface())
}
