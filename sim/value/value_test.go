package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_VariantsMustMatch(t *testing.T) {
	assert.True(t, Equal(Int(3), Int(3)))
	assert.False(t, Equal(Int(3), Real(3)), "int and real are distinct variants")
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(
		Map{"a": List{Int(1), String("x")}, "b": Bool(true)},
		Map{"b": Bool(true), "a": List{Int(1), String("x")}},
	))
	assert.False(t, Equal(Map{"a": Int(1)}, Map{"b": Int(1)}))
	assert.False(t, Equal(List{Int(1)}, List{Int(1), Int(2)}))
}

func TestFormat_SortsMapKeys(t *testing.T) {
	v := Map{"z": Real(1.5), "a": List{Int(2), Null{}}, "m": String("hi")}
	assert.Equal(t, `{a: [2, null], m: "hi", z: 1.5}`, Format(v))
}

func TestFromAny_IntegralNumbersBecomeInt(t *testing.T) {
	v, err := FromAny(map[string]any{"n": 4, "f": 2.5, "s": "x", "l": []any{true, nil}})
	require.NoError(t, err)
	assert.True(t, Equal(Map{"n": Int(4), "f": Real(2.5), "s": String("x"), "l": List{Bool(true), Null{}}}, v))
}

func TestFromAny_UnsupportedType_ReturnsError(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestParseJSON_RealKeepsVariant(t *testing.T) {
	// GIVEN a real with no fractional part
	data, err := json.Marshal(Map{"r": Real(2), "i": Int(2), "n": Null{}})
	require.NoError(t, err)

	// WHEN decoded again
	v, err := ParseJSON(data)
	require.NoError(t, err)

	// THEN the real stays a real and the int stays an int
	m := v.(Map)
	assert.Equal(t, Real(2), m["r"])
	assert.Equal(t, Int(2), m["i"])
	assert.Equal(t, Null{}, m["n"])
}
