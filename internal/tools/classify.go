package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Verdict is the classified outcome of a tool invocation: a success flag and
// the text appended to the transcript as the tool message.
type Verdict struct {
	Success bool
	Text    string
}

// successFieldNames are the boolean field/key names the fallback rule treats
// as an ok/success-like indicator, checked in order.
var successFieldNames = []string{"ok", "success", "succeeded", "passed"}

// Classify maps a tool invocation result to a verdict. Known result variants
// carry their own rules; the fallback is conservative: primitives, lists and
// maps are assumed successful, but an unrecognized structured object without
// an ok/success-like field is assumed failed, since an unclassifiable result
// cannot be trusted.
func Classify(result any) Verdict {
	switch v := result.(type) {
	case nil:
		return Verdict{Success: true}
	case *InvocationError:
		return Verdict{Success: false, Text: v.Error()}
	case InvocationError:
		return Verdict{Success: false, Text: v.Error()}
	case *ShellResult:
		return classifyShell(*v)
	case ShellResult:
		return classifyShell(v)
	case *PatchResult:
		return classifyPatch(*v)
	case PatchResult:
		return classifyPatch(v)
	case *TaskCompletion:
		return classifyTaskCompletion(*v)
	case TaskCompletion:
		return classifyTaskCompletion(v)
	default:
		return classifyFallback(result)
	}
}

func classifyShell(r ShellResult) Verdict {
	var b strings.Builder
	if strings.TrimSpace(r.Stdout) != "" {
		b.WriteString(r.Stdout)
	}
	if strings.TrimSpace(r.Stderr) != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n")
		b.WriteString(r.Stderr)
	}
	if r.ExitCode != 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "exit status %d", r.ExitCode)
	}
	text := b.String()
	if text == "" {
		text = "command completed"
	}
	return Verdict{Success: r.ExitCode == 0, Text: text}
}

func classifyPatch(r PatchResult) Verdict {
	text := r.Message
	if text == "" {
		if r.Applied {
			text = fmt.Sprintf("patch applied to %s", r.Path)
		} else {
			text = fmt.Sprintf("patch failed for %s (%d rejected hunks)", r.Path, r.RejectedHunks)
		}
	}
	return Verdict{Success: r.Applied, Text: text}
}

func classifyTaskCompletion(r TaskCompletion) Verdict {
	text := fmt.Sprintf("process task %s finished with exit code %d after %s",
		r.TaskID, r.ExitCode, r.Duration.Round(time.Millisecond))
	return Verdict{Success: r.ExitCode == 0, Text: text}
}

// classifyFallback applies the default rule to results of unknown type.
func classifyFallback(result any) Verdict {
	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Verdict{Success: true}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return Verdict{Success: true, Text: rv.String()}
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Verdict{Success: true, Text: fmt.Sprintf("%v", rv.Interface())}
	case reflect.Slice, reflect.Array:
		return Verdict{Success: true, Text: formatJSON(rv.Interface())}
	case reflect.Map:
		if ok, found := successFromMap(rv); found {
			return Verdict{Success: ok, Text: formatJSON(rv.Interface())}
		}
		return Verdict{Success: true, Text: formatJSON(rv.Interface())}
	case reflect.Struct:
		if ok, found := successFromStruct(rv); found {
			return Verdict{Success: ok, Text: formatJSON(rv.Interface())}
		}
		return Verdict{
			Success: false,
			Text:    fmt.Sprintf("unclassifiable tool result of type %T", result),
		}
	default:
		return Verdict{
			Success: false,
			Text:    fmt.Sprintf("unclassifiable tool result of type %T", result),
		}
	}
}

// successFromMap looks for an ok/success-like boolean key in a map result.
func successFromMap(rv reflect.Value) (success, found bool) {
	if rv.Type().Key().Kind() != reflect.String {
		return false, false
	}
	for _, name := range successFieldNames {
		for _, key := range rv.MapKeys() {
			if !strings.EqualFold(key.String(), name) {
				continue
			}
			val := rv.MapIndex(key)
			if val.Kind() == reflect.Interface {
				val = val.Elem()
			}
			if val.Kind() == reflect.Bool {
				return val.Bool(), true
			}
		}
	}
	return false, false
}

// successFromStruct looks for an exported ok/success-like boolean field.
func successFromStruct(rv reflect.Value) (success, found bool) {
	t := rv.Type()
	for _, name := range successFieldNames {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || !strings.EqualFold(f.Name, name) {
				continue
			}
			if f.Type.Kind() == reflect.Bool {
				return rv.Field(i).Bool(), true
			}
		}
	}
	return false, false
}

func formatJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
