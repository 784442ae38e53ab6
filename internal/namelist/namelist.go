/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package namelist reads and writes the "key = value" parameter files
// consumed by the HaloMaker and TreeMaker Fortran executables.
package namelist

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

const keyWidth = 20

type Entry struct {
	Key   string
	Value any
}

// Config is an ordered set of entries. The Fortran readers do not care about
// order, but keeping it stable makes the files diffable between runs.
type Config struct {
	entries []Entry
	index   map[string]int
}

func New() *Config {
	return &Config{index: make(map[string]int)}
}

// Set replaces the value of an existing key in place or appends a new entry.
func (c *Config) Set(key string, value any) {
	if i, ok := c.index[key]; ok {
		c.entries[i].Value = value
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, Entry{Key: key, Value: value})
}

func (c *Config) Get(key string) (any, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.entries[i].Value, true
}

// Lookup finds a key ignoring case and returns its canonical spelling.
func (c *Config) Lookup(key string) (string, bool) {
	if _, ok := c.index[key]; ok {
		return key, true
	}
	for _, e := range c.entries {
		if strings.EqualFold(e.Key, key) {
			return e.Key, true
		}
	}
	return "", false
}

func (c *Config) Len() int {
	return len(c.entries)
}

func (c *Config) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Merge applies overrides on top of c. Keys matching an existing entry
// case-insensitively keep their position and spelling; the remaining keys
// are appended in sorted order.
func (c *Config) Merge(overrides map[string]any) {
	extra := make([]string, 0)
	for k, v := range overrides {
		if canonical, ok := c.Lookup(k); ok {
			c.Set(canonical, v)
		} else {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		c.Set(k, overrides[k])
	}
}

func (c *Config) String() string {
	lines := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		lines = append(lines, fmt.Sprintf("%-*s = %s", keyWidth, e.Key, FormatValue(e.Value)))
	}
	return strings.Join(lines, "\n")
}

func (c *Config) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, c.String())
	return int64(n), err
}

func FormatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return ".true."
		}
		return ".false."
	case float64:
		return FormatReal(val)
	case float32:
		return FormatReal(float64(val))
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// FormatReal prints the shortest decimal that round-trips, always with a
// decimal point, switching to exponent form for very small or very large
// magnitudes.
func FormatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Parse reads a file written by String. Blank lines and lines starting with
// '!' or '#' are ignored.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	scanner := bufio.NewScanner(r)
	num := 0
	for scanner.Scan() {
		num++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: missing '='", num)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", num)
		}
		c.Set(key, ParseValue(strings.TrimSpace(value)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseValue infers bool, int, float or string from a rendered value.
func ParseValue(s string) any {
	switch strings.ToLower(s) {
	case ".true.", ".t.":
		return true
	case ".false.", ".f.":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i)
	}
	fortran := strings.NewReplacer("d", "e", "D", "e").Replace(s)
	if f, err := strconv.ParseFloat(fortran, 64); err == nil {
		return f
	}
	return strings.Trim(s, `'"`)
}
