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

package util

import (
	"strings"

	"github.com/olekukonko/tablewriter"
)

func SetBorderlessTable(table *tablewriter.Table) {
	table.SetBorder(false)
	table.SetAutoFormatHeaders(true)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
}

// TrimPathCell shortens long paths for display, keeping the tail which
// carries the snapshot number.
func TrimPathCell(cell string, width int) string {
	if width <= 3 || len(cell) <= width {
		return cell
	}
	return "..." + cell[len(cell)-(width-3):]
}

// TrimTableExcept trims every cell longer than width, except in the
// columns listed in excepts.
func TrimTableExcept(rows [][]string, width int, excepts ...int) {
	keep := make(map[int]bool)
	for _, except := range excepts {
		keep[except] = true
	}

	for i, row := range rows {
		for j, cell := range row {
			if keep[j] {
				continue
			}
			rows[i][j] = TrimPathCell(strings.TrimSpace(cell), width)
		}
	}
}
