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

package halopipe

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"HaloFrontEnd/internal/jobscript"
	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/linker"
	"HaloFrontEnd/internal/namelist"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/ramses"
	"HaloFrontEnd/internal/snapshot"
	"HaloFrontEnd/internal/util"

	"github.com/olekukonko/tablewriter"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// pathWidth bounds directory cells in tables; the tail is kept.
const pathWidth = 60

type jsonField struct {
	Path  string
	Value any
}

// jsonObject builds an object with fields in the given order.
func jsonObject(fields ...jsonField) (string, error) {
	doc := "{}"
	var err error
	for _, f := range fields {
		if doc, err = sjson.Set(doc, f.Path, f.Value); err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", f.Path, err)
		}
	}
	return doc, nil
}

// jsonArray appends raw JSON documents to an array.
func jsonArray(elems []string) (string, error) {
	doc := "[]"
	var err error
	for _, e := range elems {
		if doc, err = sjson.SetRaw(doc, "-1", e); err != nil {
			return "", fmt.Errorf("failed to encode array: %w", err)
		}
	}
	return doc, nil
}

func writeJSON(w io.Writer, doc string, err error) error {
	if err != nil {
		return util.WrapHaloErr(util.ErrorGeneric, "", err)
	}
	if !gjson.Valid(doc) {
		return util.NewHaloErr(util.ErrorGeneric, "produced invalid JSON")
	}
	_, err = fmt.Fprintln(w, doc)
	return err
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	util.SetBorderlessTable(table)
	table.SetHeader(header)
	return table
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func outputsJSON(outputs []snapshot.Output, infos []*ramses.Info) (string, error) {
	elems := make([]string, 0, len(outputs))
	for i, out := range outputs {
		fields := []jsonField{
			{"index", out.Index},
			{"dir", out.Dir},
			{"info", out.InfoPath},
		}
		if infos != nil {
			info := infos[i]
			fields = append(fields,
				jsonField{"aexp", info.Aexp},
				jsonField{"redshift", info.Redshift()},
				jsonField{"box_mpc", info.BoxSizeComovingMpc()},
				jsonField{"h0", info.H0},
				jsonField{"omega_m", info.OmegaM},
				jsonField{"omega_l", info.OmegaL},
			)
		}
		obj, err := jsonObject(fields...)
		if err != nil {
			return "", err
		}
		elems = append(elems, obj)
	}
	return jsonArray(elems)
}

func writeOutputsTable(w io.Writer, outputs []snapshot.Output, infos []*ramses.Info) {
	header := []string{"Index", "Dir"}
	if infos != nil {
		header = append(header, "Aexp", "Redshift", "Box[cMpc]", "H0", "Omega_m", "Omega_l")
	}
	rows := make([][]string, 0, len(outputs))
	for i, out := range outputs {
		row := []string{fmt.Sprintf("%05d", out.Index), out.Dir}
		if infos != nil {
			info := infos[i]
			row = append(row,
				formatFloat(info.Aexp),
				formatFloat(info.Redshift()),
				formatFloat(info.BoxSizeComovingMpc()),
				formatFloat(info.H0),
				formatFloat(info.OmegaM),
				formatFloat(info.OmegaL),
			)
		}
		rows = append(rows, row)
	}
	util.TrimTableExcept(rows, pathWidth, 0)

	table := newTable(w, header)
	table.AppendBulk(rows)
	table.Render()
}

func writeSubmission(w io.Writer, stage jobstate.Stage, sub *queue.Submission) error {
	if FlagJson {
		doc, err := jsonObject(
			jsonField{"stage", stage.Name},
			jsonField{"system", string(sub.System)},
			jsonField{"job_id", sub.JobID},
			jsonField{"script", sub.Script},
			jsonField{"submitted_at", sub.SubmittedAt.UTC().Format(time.RFC3339)},
		)
		return writeJSON(w, doc, err)
	}
	_, err := fmt.Fprintf(w, "%s job %s submitted to %s.\n", stage.Name, sub.JobID, sub.System)
	return err
}

func linkJSON(plan *linker.Plan, res linker.Result, dryRun bool) (string, error) {
	links := make([]string, 0, len(plan.Links))
	for _, l := range plan.Links {
		obj, err := jsonObject(jsonField{"path", l.Path}, jsonField{"target", l.Target})
		if err != nil {
			return "", err
		}
		links = append(links, obj)
	}
	arr, err := jsonArray(links)
	if err != nil {
		return "", err
	}
	doc, err := jsonObject(
		jsonField{"dest", plan.Dest},
		jsonField{"dry_run", dryRun},
		jsonField{"created", res.Created},
		jsonField{"kept", res.Kept},
		jsonField{"replaced", res.Replaced},
	)
	if err != nil {
		return "", err
	}
	return sjson.SetRaw(doc, "links", arr)
}

func exitCodeCell(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func statusJSON(statuses []*jobstate.Status) (string, error) {
	elems := make([]string, 0, len(statuses))
	for _, st := range statuses {
		fields := []jsonField{
			{"run_dir", st.RunDir},
			{"stage", st.Stage},
			{"state", string(st.State)},
			{"job_id", st.JobID},
			{"system", st.System},
		}
		if st.ExitCode != nil {
			fields = append(fields, jsonField{"exit_code", *st.ExitCode})
		}
		obj, err := jsonObject(fields...)
		if err != nil {
			return "", err
		}
		elems = append(elems, obj)
	}
	return jsonArray(elems)
}

func writeStatusTable(w io.Writer, statuses []*jobstate.Status) {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		jobID := st.JobID
		if jobID == "" {
			jobID = "-"
		}
		rows = append(rows, []string{st.RunDir, st.Stage, string(st.State), jobID, st.System, exitCodeCell(st.ExitCode)})
	}
	util.TrimTableExcept(rows, pathWidth)

	table := newTable(w, []string{"RunDir", "Stage", "State", "JobId", "System", "Exit"})
	table.AppendBulk(rows)
	table.Render()
}

func namelistJSON(nl *namelist.Config) (string, error) {
	fields := make([]jsonField, 0, nl.Len())
	for _, e := range nl.Entries() {
		fields = append(fields, jsonField{e.Key, e.Value})
	}
	return jsonObject(fields...)
}

func writeNamelistTable(w io.Writer, nl *namelist.Config) {
	table := newTable(w, []string{"Key", "Value", "Type"})
	for _, e := range nl.Entries() {
		table.Append([]string{e.Key, namelist.FormatValue(e.Value), fmt.Sprintf("%T", e.Value)})
	}
	table.Render()
}

func scriptJSON(script *jobscript.Script) (string, error) {
	elems := make([]string, 0, len(script.Directives))
	for _, d := range script.Directives {
		obj, err := jsonObject(jsonField{"system", d.System}, jsonField{"name", d.Name}, jsonField{"value", d.Value})
		if err != nil {
			return "", err
		}
		elems = append(elems, obj)
	}
	arr, err := jsonArray(elems)
	if err != nil {
		return "", err
	}
	doc, err := jsonObject(jsonField{"interpreter", script.Interpreter})
	if err != nil {
		return "", err
	}
	return sjson.SetRaw(doc, "directives", arr)
}

func writeScriptTable(w io.Writer, script *jobscript.Script) {
	fmt.Fprintf(w, "Interpreter: %s\n", script.Interpreter)
	table := newTable(w, []string{"System", "Option", "Value"})
	for _, d := range script.Directives {
		table.Append([]string{d.System, d.Name, d.Value})
	}
	table.Render()
}

func checkJSON(results []checkResult) (string, error) {
	elems := make([]string, 0, len(results))
	for _, r := range results {
		obj, err := jsonObject(jsonField{"check", r.Name}, jsonField{"result", r.Result}, jsonField{"detail", r.Detail})
		if err != nil {
			return "", err
		}
		elems = append(elems, obj)
	}
	return jsonArray(elems)
}

func writeCheckTable(w io.Writer, results []checkResult) {
	table := newTable(w, []string{"Check", "Result", "Detail"})
	for _, r := range results {
		table.Append([]string{r.Name, r.Result, r.Detail})
	}
	table.Render()
}
