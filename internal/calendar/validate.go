package calendar

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
)

// AppVersion selects which result payload shape the server returns.
type AppVersion string

const (
	AppVersionV1 AppVersion = "V1" // legacy
	AppVersionV2 AppVersion = "V2"
)

// ParseAppVersion accepts V1 or V2 in any casing.
func ParseAppVersion(s string) (AppVersion, error) {
	switch v := AppVersion(strings.ToUpper(strings.TrimSpace(s))); v {
	case AppVersionV1, AppVersionV2:
		return v, nil
	default:
		return "", fmt.Errorf("unsupported app version %q (expected V1|V2)", s)
	}
}

// LegacyShape narrows which V1 payloads are accepted. The legacy server has
// been seen returning the dates either as a bare result array or under
// result.dates.
type LegacyShape string

const (
	LegacyShapeEither LegacyShape = "either"
	LegacyShapeArray  LegacyShape = "array"
	LegacyShapeDates  LegacyShape = "dates"
)

// ParseLegacyShape accepts either, array or dates; empty means either.
func ParseLegacyShape(s string) (LegacyShape, error) {
	switch v := LegacyShape(strings.ToLower(strings.TrimSpace(s))); v {
	case LegacyShapeEither, LegacyShapeArray, LegacyShapeDates:
		return v, nil
	case "":
		return LegacyShapeEither, nil
	default:
		return "", fmt.Errorf("unsupported legacy result shape %q (expected either|array|dates)", s)
	}
}

// ParseBody parses a response body. A body that is not strict JSON, or that
// parses to null, false, 0 or "", is reported as absent.
func ParseBody(body []byte) (*fastjson.Value, bool) {
	// ParseBytes accepts NaN, inf and leading zeros; ValidateBytes does not.
	if !Parsable(body) {
		return nil, false
	}
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return nil, false
	}
	return v, truthy(v)
}

// Parsable reports whether body is valid JSON.
func Parsable(body []byte) bool {
	return fastjson.ValidateBytes(body) == nil
}

// CheckEnvelope reports whether v is the generic API wrapper: an object with
// a boolean isSuccess and code, message and result keys.
func CheckEnvelope(v *fastjson.Value) bool {
	if v == nil || v.Type() != fastjson.TypeObject {
		return false
	}
	ok := v.Get("isSuccess")
	if ok == nil || (ok.Type() != fastjson.TypeTrue && ok.Type() != fastjson.TypeFalse) {
		return false
	}
	return v.Exists("code") && v.Exists("message") && v.Exists("result")
}

// CheckResultShape applies the version specific result check.
func CheckResultShape(v *fastjson.Value, version AppVersion, legacy LegacyShape) bool {
	if v == nil || v.Type() != fastjson.TypeObject {
		return false
	}
	result := v.Get("result")

	if version != AppVersionV1 {
		return hasDates(result)
	}
	switch legacy {
	case LegacyShapeArray:
		return isArray(result)
	case LegacyShapeDates:
		return hasDates(result)
	default:
		return isArray(result) || hasDates(result)
	}
}

func hasDates(result *fastjson.Value) bool {
	if result == nil || result.Type() != fastjson.TypeObject {
		return false
	}
	return isArray(result.Get("dates"))
}

func isArray(v *fastjson.Value) bool {
	return v != nil && v.Type() == fastjson.TypeArray
}

func truthy(v *fastjson.Value) bool {
	switch v.Type() {
	case fastjson.TypeNull, fastjson.TypeFalse:
		return false
	case fastjson.TypeNumber:
		f, err := v.Float64()
		return err == nil && f != 0
	case fastjson.TypeString:
		s, err := v.StringBytes()
		return err == nil && len(s) > 0
	default:
		return true
	}
}
