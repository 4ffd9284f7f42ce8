package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Violation одно нарушение контракта.
type Violation struct {
	Path    string // путь вида codes[0].severity, "$" для корня
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// Violations все нарушения, найденные в одном ответе.
type Violations []Violation

func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// Check разбирает JSON и сверяет его со схемой. Пустой результат означает, что документ подходит.
func (n *Node) Check(data []byte) Violations {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Violations{{Path: "$", Message: "invalid JSON: " + err.Error()}}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Violations{{Path: "$", Message: "unexpected data after the top-level value"}}
	}

	var out Violations
	n.check("$", doc, &out)
	return out
}

func (n *Node) check(path string, value any, out *Violations) {
	if value == nil {
		n.fail(out, path, "null is not allowed, expected %s", n.Type)
		return
	}

	switch n.Type {
	case TypeObject:
		n.checkObject(path, value, out)
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			n.fail(out, path, "expected array, got %s", kindOf(value))
			return
		}
		for i, item := range items {
			n.Items.check(path+"["+strconv.Itoa(i)+"]", item, out)
		}
	case TypeString:
		s, ok := value.(string)
		if !ok {
			n.fail(out, path, "expected string, got %s", kindOf(value))
			return
		}
		if len(n.Enum) > 0 && !slices.Contains(n.Enum, s) {
			n.fail(out, path, "value %q is not one of [%s]", s, strings.Join(n.Enum, ", "))
		}
	case TypeInteger:
		num, ok := value.(json.Number)
		if !ok {
			n.fail(out, path, "expected integer, got %s", kindOf(value))
			return
		}
		i, err := num.Int64()
		if err != nil {
			n.fail(out, path, "expected integer, got %s", num.String())
			return
		}
		n.checkMinimum(path, float64(i), out)
	case TypeNumber:
		num, ok := value.(json.Number)
		if !ok {
			n.fail(out, path, "expected number, got %s", kindOf(value))
			return
		}
		f, err := num.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			n.fail(out, path, "number %s is out of range", num.String())
			return
		}
		n.checkMinimum(path, f, out)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			n.fail(out, path, "expected boolean, got %s", kindOf(value))
		}
	default:
		n.fail(out, path, "schema has unsupported type %q", n.Type)
	}
}

func (n *Node) checkObject(path string, value any, out *Violations) {
	obj, ok := value.(map[string]any)
	if !ok {
		n.fail(out, path, "expected object, got %s", kindOf(value))
		return
	}

	before := len(*out)
	for _, p := range n.Properties {
		v, present := obj[p.Name]
		if !present {
			n.fail(out, join(path, p.Name), "required property is missing")
			continue
		}
		p.Schema.check(join(path, p.Name), v, out)
	}

	extra := make([]string, 0)
	for key := range obj {
		if _, known := n.Property(key); !known {
			extra = append(extra, key)
		}
	}
	slices.Sort(extra)
	for _, key := range extra {
		n.fail(out, join(path, key), "additional property is not allowed")
	}

	if len(*out) > before {
		return
	}
	for _, rule := range n.Rules {
		if err := rule.Check(obj); err != nil {
			n.fail(out, path, "%s: %v", rule.Name, err)
		}
	}
}

func (n *Node) checkMinimum(path string, v float64, out *Violations) {
	if n.Minimum != nil && v < *n.Minimum {
		n.fail(out, path, "value %v is below minimum %v", v, *n.Minimum)
	}
}

func (n *Node) fail(out *Violations, path, format string, args ...any) {
	*out = append(*out, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// NumberField достаёт уже проверенное числовое поле объекта для Rule.
func NumberField(obj map[string]any, name string) (float64, error) {
	num, ok := obj[name].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%s is not a number", name)
	}
	return num.Float64()
}

func join(path, name string) string {
	if path == "$" {
		return name
	}
	return path + "." + name
}

func kindOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
