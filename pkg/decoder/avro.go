package decoder

import (
	"encoding/json"
	"strings"
)

var avroPrimitives = map[string]bool{
	"null": true, "boolean": true, "int": true, "long": true, "float": true,
	"double": true, "bytes": true, "string": true,
}

// writerSchema is a parsed Avro schema used to strip goavro's union wrappers.
// goavro decodes a non-null union value as {"<branch name>": value}; only
// positions the schema declares as unions are unwrapped, so a map field that
// happens to hold one entry is left alone.
type writerSchema struct {
	root  interface{}
	named map[string]namedType
}

// namedType is a record, enum or fixed definition with the namespace its
// nested references resolve against.
type namedType struct {
	def       map[string]interface{}
	namespace string
}

func parseWriterSchema(schema string) (*writerSchema, error) {
	var root interface{}
	if err := json.Unmarshal([]byte(schema), &root); err != nil {
		return nil, err
	}
	ws := &writerSchema{root: root, named: make(map[string]namedType)}
	ws.collect(root, "")
	return ws, nil
}

func fullName(name, namespace string) string {
	if strings.Contains(name, ".") || namespace == "" {
		return name
	}
	return namespace + "." + name
}

// collect registers every named type so references resolve wherever they
// are defined.
func (ws *writerSchema) collect(s interface{}, namespace string) {
	switch t := s.(type) {
	case []interface{}:
		for _, branch := range t {
			ws.collect(branch, namespace)
		}
	case map[string]interface{}:
		typ, _ := t["type"].(string)
		switch typ {
		case "record", "error", "enum", "fixed":
			ns := namespace
			if explicit, ok := t["namespace"].(string); ok {
				ns = explicit
			}
			name, _ := t["name"].(string)
			full := fullName(name, ns)
			if i := strings.LastIndex(full, "."); i >= 0 {
				ns = full[:i]
			}
			ws.named[full] = namedType{def: t, namespace: ns}
			if fields, ok := t["fields"].([]interface{}); ok {
				for _, f := range fields {
					if fm, ok := f.(map[string]interface{}); ok {
						ws.collect(fm["type"], ns)
					}
				}
			}
		case "array":
			ws.collect(t["items"], namespace)
		case "map":
			ws.collect(t["values"], namespace)
		default:
			if _, nested := t["type"].(string); !nested {
				ws.collect(t["type"], namespace)
			}
		}
	}
}

// resolve follows a type reference by name.
func (ws *writerSchema) resolve(name, namespace string) (namedType, bool) {
	if nt, ok := ws.named[fullName(name, namespace)]; ok {
		return nt, true
	}
	nt, ok := ws.named[name]
	return nt, ok
}

// branchKeys lists the keys goavro may use for a value of schema s inside a
// union. Logical types are keyed "<type>.<logicalType>" when goavro knows
// them and by their underlying type otherwise.
func (ws *writerSchema) branchKeys(s interface{}, namespace string) []string {
	switch t := s.(type) {
	case string:
		if avroPrimitives[t] {
			return []string{t}
		}
		if full := fullName(t, namespace); ws.named[full].def != nil {
			return []string{full}
		}
		return []string{t}
	case map[string]interface{}:
		typ, _ := t["type"].(string)
		switch typ {
		case "record", "error", "enum", "fixed":
			ns := namespace
			if explicit, ok := t["namespace"].(string); ok {
				ns = explicit
			}
			name, _ := t["name"].(string)
			return []string{fullName(name, ns)}
		default:
			if lt, ok := t["logicalType"].(string); ok {
				return []string{typ + "." + lt, typ}
			}
			return []string{typ}
		}
	}
	return nil
}

// unwrap returns v with every union wrapper the schema declares removed. A nil
// schema leaves v untouched.
func (ws *writerSchema) unwrap(v interface{}) interface{} {
	if ws == nil {
		return v
	}
	return ws.walk(ws.root, "", v)
}

func (ws *writerSchema) walk(s interface{}, namespace string, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch t := s.(type) {
	case string:
		if avroPrimitives[t] {
			return v
		}
		nt, ok := ws.resolve(t, namespace)
		if !ok {
			return v
		}
		return ws.walk(nt.def, nt.namespace, v)
	case []interface{}:
		wrapped, ok := v.(map[string]interface{})
		if !ok || len(wrapped) != 1 {
			return v
		}
		for key, inner := range wrapped {
			for _, branch := range t {
				for _, k := range ws.branchKeys(branch, namespace) {
					if k == key {
						return ws.walk(branch, namespace, inner)
					}
				}
			}
		}
		return v
	case map[string]interface{}:
		typ, _ := t["type"].(string)
		switch typ {
		case "record", "error":
			rec, ok := v.(map[string]interface{})
			if !ok {
				return v
			}
			ns := namespace
			name, _ := t["name"].(string)
			if explicit, ok := t["namespace"].(string); ok {
				ns = explicit
			}
			if full := fullName(name, ns); strings.Contains(full, ".") {
				ns = full[:strings.LastIndex(full, ".")]
			}
			fields, _ := t["fields"].([]interface{})
			for _, f := range fields {
				fm, ok := f.(map[string]interface{})
				if !ok {
					continue
				}
				fname, _ := fm["name"].(string)
				if inner, present := rec[fname]; present {
					rec[fname] = ws.walk(fm["type"], ns, inner)
				}
			}
			return rec
		case "array":
			items, ok := v.([]interface{})
			if !ok {
				return v
			}
			for i, inner := range items {
				items[i] = ws.walk(t["items"], namespace, inner)
			}
			return items
		case "map":
			m, ok := v.(map[string]interface{})
			if !ok {
				return v
			}
			for k, inner := range m {
				m[k] = ws.walk(t["values"], namespace, inner)
			}
			return m
		case "enum", "fixed":
			return v
		default:
			// {"type": "long"} or {"type": <nested schema>}
			return ws.walk(t["type"], namespace, v)
		}
	}
	return v
}
