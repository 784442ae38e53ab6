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
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var walltimeRe = regexp.MustCompile(`^(?:(\d+)-)?(\d+):(\d+):(\d+)$`)

// ParseWalltime accepts "hours:minutes:seconds" or "day-hours:minutes:seconds".
func ParseWalltime(s string) (time.Duration, error) {
	result := walltimeRe.FindStringSubmatch(s)
	if result == nil {
		return 0, fmt.Errorf("invalid walltime %q, expected [D-]HH:MM:SS", s)
	}

	var dd uint64
	if result[1] != "" {
		day, err := strconv.ParseUint(result[1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid walltime %q: %w", s, err)
		}
		dd = day
	}
	hh, err := strconv.ParseUint(result[2], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid walltime %q: %w", s, err)
	}
	mm, err := strconv.ParseUint(result[3], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid walltime %q: %w", s, err)
	}
	ss, err := strconv.ParseUint(result[4], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid walltime %q: %w", s, err)
	}
	if mm >= 60 || ss >= 60 {
		return 0, fmt.Errorf("invalid walltime %q: minutes and seconds must be below 60", s)
	}

	seconds := 24*60*60*dd + 60*60*hh + 60*mm + ss
	if seconds == 0 {
		return 0, fmt.Errorf("walltime must be positive")
	}
	return time.Duration(seconds) * time.Second, nil
}

// FormatWalltime renders d as HH:MM:SS, with hours allowed to exceed 24.
// With days set, full days are split off as "D-HH:MM:SS".
func FormatWalltime(d time.Duration, days bool) string {
	second := int64(d / time.Second)
	if days {
		return SecondTimeFormat(second)
	}
	hh := second / 3600
	second %= 3600
	return fmt.Sprintf("%02d:%02d:%02d", hh, second/60, second%60)
}

func SecondTimeFormat(second int64) string {
	timeFormat := ""
	dd := second / 24 / 3600
	second %= 24 * 3600
	hh := second / 3600
	second %= 3600
	mm := second / 60
	ss := second % 60
	if dd > 0 {
		timeFormat = fmt.Sprintf("%d-%02d:%02d:%02d", dd, hh, mm, ss)
	} else {
		timeFormat = fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss)
	}
	return timeFormat
}

// FormatBytes renders n with a binary unit and one decimal, e.g. "1.5 GiB".
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 5; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
