// Package contract описывает контракт ответа модели.
//
// Схема задаётся один раз деревом Node. Из этого же дерева строится
// JSON Schema для запроса к модели (JSONSchema) и проверка ответа (Check),
// поэтому то, что мы просим, и то, что мы принимаем, не могут разойтись.
package contract

// Type примитивный тип узла схемы.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
)

// Node узел декларативной схемы.
type Node struct {
	Type        Type
	Description string
	Properties  []Property // для object, в порядке объявления
	Items       *Node      // для array
	Enum        []string   // для string
	Minimum     *float64   // для integer и number
	Rules       []Rule     // проверки между полями одного object
}

// Property именованное поле объекта. Все поля обязательны.
type Property struct {
	Name   string
	Schema *Node
}

// Rule проверка объекта, которую не выразить в JSON Schema.
// Check вызывается только для объекта, все поля которого уже прошли проверку.
type Rule struct {
	Name  string
	Check func(obj map[string]any) error
}

// Object создаёт закрытый объект: лишние поля запрещены, все перечисленные обязательны.
func Object(description string, props ...Property) *Node {
	return &Node{Type: TypeObject, Description: description, Properties: props}
}

// Field объявляет поле объекта.
func Field(name string, schema *Node) Property {
	return Property{Name: name, Schema: schema}
}

// Array создаёт массив. Пустой массив допустим, отсутствующий нет.
func Array(description string, items *Node) *Node {
	return &Node{Type: TypeArray, Description: description, Items: items}
}

func String(description string) *Node {
	return &Node{Type: TypeString, Description: description}
}

// Enum создаёт строку из закрытого набора значений.
func Enum(description string, values ...string) *Node {
	return &Node{Type: TypeString, Description: description, Enum: values}
}

func Integer(description string) *Node {
	return &Node{Type: TypeInteger, Description: description}
}

func Number(description string) *Node {
	return &Node{Type: TypeNumber, Description: description}
}

func Boolean(description string) *Node {
	return &Node{Type: TypeBoolean, Description: description}
}

// Min задаёт нижнюю границу для integer и number.
func (n *Node) Min(v float64) *Node {
	n.Minimum = &v
	return n
}

// With добавляет к объекту проверки между полями.
func (n *Node) With(rules ...Rule) *Node {
	n.Rules = append(n.Rules, rules...)
	return n
}

// Property ищет поле объекта по имени.
func (n *Node) Property(name string) (*Node, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// JSONSchema строит JSON Schema для structured output.
// Результат пригоден и для responseJsonSchema Gemini, и для strict json_schema OpenAI.
func (n *Node) JSONSchema() map[string]any {
	out := map[string]any{"type": string(n.Type)}
	if n.Description != "" {
		out["description"] = n.Description
	}

	switch n.Type {
	case TypeObject:
		props := make(map[string]any, len(n.Properties))
		required := make([]string, 0, len(n.Properties))
		for _, p := range n.Properties {
			props[p.Name] = p.Schema.JSONSchema()
			required = append(required, p.Name)
		}
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	case TypeArray:
		out["items"] = n.Items.JSONSchema()
	case TypeString:
		if len(n.Enum) > 0 {
			out["enum"] = append([]string(nil), n.Enum...)
		}
	case TypeInteger, TypeNumber:
		if n.Minimum != nil {
			out["minimum"] = *n.Minimum
		}
	}

	return out
}
