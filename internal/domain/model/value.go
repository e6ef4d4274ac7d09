package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind identifica o tipo de um valor JSON
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// ErrNotObject indica que um documento JSON válido não é um objeto
var ErrNotObject = errors.New("o documento JSON não é um objeto")

// Value é uma representação tipada de um valor JSON arbitrário.
// O valor zero é null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	raw  string
	str  string
	arr  []Value
	obj  Object
}

// Object mapeia chaves para valores JSON tipados
type Object map[string]Value

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: items}
}

func ObjectValue(o Object) Value {
	return Value{kind: KindObject, obj: o}
}

func Number(n float64) Value {
	return Value{kind: KindNumber, num: n, raw: strconv.FormatFloat(n, 'f', -1, 64)}
}

// Kind retorna o tipo do valor
func (v Value) Kind() Kind { return v.kind }

// Clone copia arrays e objetos aninhados; escalares são devolvidos como estão
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		if v.arr != nil {
			items := make([]Value, len(v.arr))
			for i, item := range v.arr {
				items[i] = item.Clone()
			}
			v.arr = items
		}
	case KindObject:
		v.obj = v.obj.Clone()
	}
	return v
}

// Clone devolve uma cópia profunda do objeto; nil continua nil
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v.Clone()
	}
	return out
}

// Object retorna o objeto contido, se o valor for um objeto
func (v Value) Object() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Str retorna a string contida, se o valor for uma string
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// ParseValue interpreta um documento JSON
func ParseValue(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, errors.New("JSON inválido")
	}
	return FromResult(gjson.ParseBytes(data)), nil
}

// ParseObject interpreta um documento JSON que deve ser um objeto
func ParseObject(data []byte) (Object, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.Object()
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// FromResult converte um resultado gjson em Value
func FromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.Number:
		return Value{kind: KindNumber, num: r.Num, raw: r.Raw}
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsObject() {
			obj := Object{}
			r.ForEach(func(key, value gjson.Result) bool {
				obj[key.Str] = FromResult(value)
				return true
			})
			return ObjectValue(obj)
		}
		if r.IsArray() {
			items := make([]Value, 0)
			r.ForEach(func(_, value gjson.Result) bool {
				items = append(items, FromResult(value))
				return true
			})
			return Array(items...)
		}
	}
	return Null()
}

// Equal compara dois valores estruturalmente.
// Números são comparados pelo valor numérico, não pela representação textual.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return false
}

// Contains verifica se sub é um subconjunto de v: para objetos, toda chave de
// sub precisa existir em v com valor contido recursivamente; demais tipos
// exigem igualdade.
func (v Value) Contains(sub Value) bool {
	if v.kind == KindObject && sub.kind == KindObject {
		return v.obj.Contains(sub.obj)
	}
	return v.Equal(sub)
}

// Equal compara dois objetos chave a chave
func (o Object) Equal(other Object) bool {
	if len(o) != len(other) {
		return false
	}
	for k, v := range o {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Contains verifica se todas as chaves de tmpl existem em o com valores compatíveis
func (o Object) Contains(tmpl Object) bool {
	for k, want := range tmpl {
		got, ok := o[k]
		if !ok || !got.Contains(want) {
			return false
		}
	}
	return true
}

// Keys retorna as chaves do objeto em ordem lexicográfica
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON implementa json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindNumber:
		if v.raw != "" {
			return []byte(v.raw), nil
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("tipo de valor desconhecido: %d", v.kind)
}

// UnmarshalJSON implementa json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalJSON implementa json.Marshaler
func (o Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(o))
}

// UnmarshalJSON aceita um objeto JSON ou null (objeto ausente)
func (o *Object) UnmarshalJSON(data []byte) error {
	if gjson.ParseBytes(data).Type == gjson.Null {
		*o = nil
		return nil
	}
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}
