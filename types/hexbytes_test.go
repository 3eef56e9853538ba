package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	c.Run("String", func(c *qt.C) {
		testCases := []struct {
			name string
			in   HexBytes
			want string
		}{
			{name: "nil slice", in: nil, want: "0x"},
			{name: "empty", in: HexBytes{}, want: "0x"},
			{name: "non-empty", in: HexBytes{0x00, 0xAB, 0xCD}, want: "0x00abcd"},
		}

		for _, tc := range testCases {
			c.Run(tc.name, func(c *qt.C) {
				c.Assert(tc.in.String(), qt.Equals, tc.want)
			})
		}
	})

	c.Run("Equal", func(c *qt.C) {
		c.Assert(HexBytes{1, 2}.Equal(HexBytes{1, 2}), qt.IsTrue)
		c.Assert(HexBytes{1, 2}.Equal(HexBytes{1, 3}), qt.IsFalse)
		c.Assert(HexBytes{1}.Equal(HexBytes{1, 0}), qt.IsFalse)
		c.Assert(HexBytes(nil).Equal(HexBytes{}), qt.IsTrue)
	})

	c.Run("JSON", func(c *qt.C) {
		in := HexBytes{0xde, 0xad, 0xbe, 0xef}
		data, err := json.Marshal(in)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, `"0xdeadbeef"`)

		var out HexBytes
		c.Assert(json.Unmarshal(data, &out), qt.IsNil)
		c.Assert(out, qt.DeepEquals, in)

		c.Assert(json.Unmarshal([]byte(`"deadbeef"`), &out), qt.IsNil)
		c.Assert(out, qt.DeepEquals, in)

		c.Assert(json.Unmarshal([]byte(`"0xzz"`), &out), qt.ErrorMatches, `invalid hex string "zz".*`)
		c.Assert(out.UnmarshalJSON([]byte(`deadbeef`)), qt.ErrorMatches, `invalid JSON string.*`)
	})

	c.Run("HexStringToHexBytes", func(c *qt.C) {
		b, err := HexStringToHexBytes("0XAB01")
		c.Assert(err, qt.IsNil)
		c.Assert(b, qt.DeepEquals, HexBytes{0xab, 0x01})

		_, err = HexStringToHexBytes("abc")
		c.Assert(err, qt.ErrorMatches, `invalid hex string "abc".*`)

		c.Assert(func() { HexStringToHexBytesMustUnmarshal("nothex") }, qt.PanicMatches, `invalid hex string.*`)
	})
}
