/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package tlsconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func (c *Cipher) unmarshall(val []byte) error {
	*c = Cipher(val)
	return nil
}

func (c Cipher) MarshalJSON() ([]byte, error) {
	return quoted(string(c)), nil
}

func (c *Cipher) UnmarshalJSON(b []byte) error {
	return c.unmarshall(unquoted(b))
}

func (c Cipher) MarshalYAML() (interface{}, error) {
	return string(c), nil
}

func (c *Cipher) UnmarshalYAML(value *yaml.Node) error {
	return c.unmarshall([]byte(value.Value))
}

func (c Cipher) MarshalTOML() ([]byte, error) {
	return []byte(c), nil
}

func (c *Cipher) UnmarshalTOML(i interface{}) error {
	return unmarshalTOMLAny(i, c.unmarshall)
}

func (c Cipher) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

func (c *Cipher) UnmarshalText(b []byte) error {
	return c.unmarshall(b)
}

func (c Cipher) MarshalCBOR() ([]byte, error) {
	return []byte(c), nil
}

func (c *Cipher) UnmarshalCBOR(b []byte) error {
	return c.unmarshall(b)
}

func (c *Curves) unmarshall(val []byte) error {
	*c = Curves(val)
	return nil
}

func (c Curves) MarshalJSON() ([]byte, error) {
	return quoted(string(c)), nil
}

func (c *Curves) UnmarshalJSON(b []byte) error {
	return c.unmarshall(unquoted(b))
}

func (c Curves) MarshalYAML() (interface{}, error) {
	return string(c), nil
}

func (c *Curves) UnmarshalYAML(value *yaml.Node) error {
	return c.unmarshall([]byte(value.Value))
}

func (c Curves) MarshalTOML() ([]byte, error) {
	return []byte(c), nil
}

func (c *Curves) UnmarshalTOML(i interface{}) error {
	return unmarshalTOMLAny(i, c.unmarshall)
}

func (c Curves) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

func (c *Curves) UnmarshalText(b []byte) error {
	return c.unmarshall(b)
}

func (c Curves) MarshalCBOR() ([]byte, error) {
	return []byte(c), nil
}

func (c *Curves) UnmarshalCBOR(b []byte) error {
	return c.unmarshall(b)
}

func (v *Version) unmarshall(val []byte) error {
	*v = Version(val)
	return nil
}

func (v Version) MarshalJSON() ([]byte, error) {
	return quoted(string(v)), nil
}

func (v *Version) UnmarshalJSON(b []byte) error {
	return v.unmarshall(unquoted(b))
}

func (v Version) MarshalYAML() (interface{}, error) {
	return string(v), nil
}

func (v *Version) UnmarshalYAML(value *yaml.Node) error {
	return v.unmarshall([]byte(value.Value))
}

func (v Version) MarshalTOML() ([]byte, error) {
	return []byte(v), nil
}

func (v *Version) UnmarshalTOML(i interface{}) error {
	return unmarshalTOMLAny(i, v.unmarshall)
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	return v.unmarshall(b)
}

func (v Version) MarshalCBOR() ([]byte, error) {
	return []byte(v), nil
}

func (v *Version) UnmarshalCBOR(b []byte) error {
	return v.unmarshall(b)
}

func (a *ClientAuth) unmarshall(val []byte) error {
	*a = ClientAuth(val)
	return nil
}

func (a ClientAuth) MarshalJSON() ([]byte, error) {
	return quoted(string(a)), nil
}

func (a *ClientAuth) UnmarshalJSON(b []byte) error {
	return a.unmarshall(unquoted(b))
}

func (a ClientAuth) MarshalYAML() (interface{}, error) {
	return string(a), nil
}

func (a *ClientAuth) UnmarshalYAML(value *yaml.Node) error {
	return a.unmarshall([]byte(value.Value))
}

func (a ClientAuth) MarshalTOML() ([]byte, error) {
	return []byte(a), nil
}

func (a *ClientAuth) UnmarshalTOML(i interface{}) error {
	return unmarshalTOMLAny(i, a.unmarshall)
}

func (a ClientAuth) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

func (a *ClientAuth) UnmarshalText(b []byte) error {
	return a.unmarshall(b)
}

func (a ClientAuth) MarshalCBOR() ([]byte, error) {
	return []byte(a), nil
}

func (a *ClientAuth) UnmarshalCBOR(b []byte) error {
	return a.unmarshall(b)
}

func quoted(s string) []byte {
	b := make([]byte, 0, len(s)+2)
	b = append(b, '"')
	b = append(b, []byte(s)...)
	b = append(b, '"')
	return b
}

func unquoted(b []byte) []byte {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

func unmarshalTOMLAny(i interface{}, set func([]byte) error) error {
	switch p := i.(type) {
	case []byte:
		return set(p)
	case string:
		return set([]byte(p))
	default:
		return fmt.Errorf("tlsconfig: value not in a valid format")
	}
}
