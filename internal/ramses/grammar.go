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

package ramses

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	infoLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Domain", Pattern: `\bDOMAIN\b`},
		{Name: "Number", Pattern: `[-+]?(?:\d+\.\d*|\.\d+|\d+)(?:[eEdD][-+]?\d+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Eq", Pattern: `=`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	infoParser = participle.MustBuild[infoFile](
		participle.Lexer(infoLexer),
		participle.Elide("Whitespace"),
	)
)

type infoFile struct {
	Params []*infoParam `parser:"@@*"`
	Table  *domainTable `parser:"@@?"`
}

// Keys may span several words, e.g. "ordering type".
type infoParam struct {
	Key   []string   `parser:"@Ident+ Eq"`
	Value *infoValue `parser:"@@"`
}

type infoValue struct {
	Number *string `parser:"  @Number"`
	Word   *string `parser:"| @Ident"`
}

func (v *infoValue) raw() string {
	if v.Number != nil {
		return *v.Number
	}
	return *v.Word
}

type domainTable struct {
	Header []string     `parser:"Domain @Ident*"`
	Rows   []*domainRow `parser:"@@*"`
}

type domainRow struct {
	Domain string `parser:"@Number"`
	IndMin string `parser:"@Number"`
	IndMax string `parser:"@Number"`
}

func parseInfo(name, content string) (*infoFile, error) {
	return infoParser.ParseString(name, content)
}

func joinKey(words []string) string {
	return strings.Join(words, " ")
}
