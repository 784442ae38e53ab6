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

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// HostPhysicalCores returns the number of physical cores of this host, or
// the logical count when the physical one is unavailable.
func HostPhysicalCores() (int, error) {
	n, err := cpu.Counts(false)
	if err == nil && n > 0 {
		return n, nil
	}
	n, err = cpu.Counts(true)
	if err != nil {
		return 0, fmt.Errorf("failed to count cpus: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("failed to count cpus")
	}
	return n, nil
}

// FreeDiskBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeDiskBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat filesystem of %s: %w", path, err)
	}
	return usage.Free, nil
}
