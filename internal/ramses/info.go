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

// Package ramses loads the cosmological parameters of a RAMSES snapshot from
// its info_NNNNN.txt descriptor.
package ramses

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	logrus "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MpcInCm is the length of one megaparsec in centimetres.
const MpcInCm = 3.0856775814913673e24

var log = logrus.WithField("component", "Ramses")

const seriesWorkers = 8

type Domain struct {
	Index  int
	IndMin float64
	IndMax float64
}

type Info struct {
	Path string

	NCpu        int
	NDim        int
	LevelMin    int
	LevelMax    int
	NGridMax    int
	NStepCoarse int

	BoxLen float64
	Time   float64
	Aexp   float64
	H0     float64
	OmegaM float64
	OmegaL float64
	OmegaK float64
	OmegaB float64
	UnitL  float64
	UnitD  float64
	UnitT  float64

	Ordering string
	Domains  []Domain

	// Raw holds every key of the file, including ones without a field above.
	Raw map[string]string
}

var requiredKeys = []string{"boxlen", "aexp", "H0", "omega_m", "omega_l", "unit_l"}

func LoadInfo(path string) (*Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := ParseInfo(path, string(content))
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded %s: aexp=%g z=%g", path, info.Aexp, info.Redshift())
	return info, nil
}

// LoadSeries loads the descriptors concurrently. The result follows the
// order of paths; the first failure is returned.
func LoadSeries(paths []string) ([]*Info, error) {
	infos := make([]*Info, len(paths))

	var eg errgroup.Group
	eg.SetLimit(seriesWorkers)
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			info, err := LoadInfo(p)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func ParseInfo(name, content string) (*Info, error) {
	file, err := parseInfo(name, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	info := &Info{Path: name, Raw: make(map[string]string, len(file.Params))}
	for _, p := range file.Params {
		info.Raw[joinKey(p.Key)] = p.Value.raw()
	}
	for _, key := range requiredKeys {
		if _, ok := info.Raw[key]; !ok {
			return nil, fmt.Errorf("%s: missing required key %q", name, key)
		}
	}

	ints := map[string]*int{
		"ncpu":         &info.NCpu,
		"ndim":         &info.NDim,
		"levelmin":     &info.LevelMin,
		"levelmax":     &info.LevelMax,
		"ngridmax":     &info.NGridMax,
		"nstep_coarse": &info.NStepCoarse,
	}
	for key, ptr := range ints {
		raw, ok := info.Raw[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", name, key, err)
		}
		*ptr = v
	}

	floats := map[string]*float64{
		"boxlen":  &info.BoxLen,
		"time":    &info.Time,
		"aexp":    &info.Aexp,
		"H0":      &info.H0,
		"omega_m": &info.OmegaM,
		"omega_l": &info.OmegaL,
		"omega_k": &info.OmegaK,
		"omega_b": &info.OmegaB,
		"unit_l":  &info.UnitL,
		"unit_d":  &info.UnitD,
		"unit_t":  &info.UnitT,
	}
	for key, ptr := range floats {
		raw, ok := info.Raw[key]
		if !ok {
			continue
		}
		v, err := ParseFortranReal(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", name, key, err)
		}
		*ptr = v
	}
	info.Ordering = info.Raw["ordering type"]

	if info.Aexp <= 0 {
		return nil, fmt.Errorf("%s: expansion factor must be positive, got %g", name, info.Aexp)
	}

	if file.Table != nil {
		for _, row := range file.Table.Rows {
			d, err := parseDomainRow(row)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			info.Domains = append(info.Domains, d)
		}
	}

	return info, nil
}

func parseDomainRow(row *domainRow) (Domain, error) {
	idx, err := strconv.Atoi(row.Domain)
	if err != nil {
		return Domain{}, fmt.Errorf("domain index %q: %w", row.Domain, err)
	}
	lo, err := ParseFortranReal(row.IndMin)
	if err != nil {
		return Domain{}, fmt.Errorf("domain %d ind_min: %w", idx, err)
	}
	hi, err := ParseFortranReal(row.IndMax)
	if err != nil {
		return Domain{}, fmt.Errorf("domain %d ind_max: %w", idx, err)
	}
	return Domain{Index: idx, IndMin: lo, IndMax: hi}, nil
}

// ParseFortranReal accepts both E and D exponent markers.
func ParseFortranReal(s string) (float64, error) {
	return strconv.ParseFloat(strings.NewReplacer("d", "e", "D", "e").Replace(s), 64)
}

func (i *Info) Redshift() float64 {
	return 1/i.Aexp - 1
}

// HubbleParam is the dimensionless h = H0 / (100 km/s/Mpc).
func (i *Info) HubbleParam() float64 {
	return i.H0 / 100
}

// BoxSizeComovingMpc is the box side length in comoving Mpc (not Mpc/h).
func (i *Info) BoxSizeComovingMpc() float64 {
	return i.BoxLen * i.UnitL / (i.Aexp * MpcInCm)
}
