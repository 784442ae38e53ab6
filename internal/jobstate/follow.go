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

package jobstate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nxadm/tail"
)

// Follow copies the stage log of runDir to w as it grows, until ctx is done
// or the stage's done marker appears. Without follow it prints the current
// content and returns.
func Follow(ctx context.Context, runDir string, stage Stage, w io.Writer, follow bool) error {
	logPath := filepath.Join(runDir, stage.Log)

	if !follow {
		f, err := os.Open(logPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}

	t, err := tail.TailFile(logPath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		Poll:      true,
		MustExist: false,
		Location:  &tail.SeekInfo{Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", logPath, err)
	}
	defer t.Cleanup()

	donePath := filepath.Join(runDir, stage.Done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok || line == nil {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("tail error: %w", line.Err)
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := os.Stat(donePath); err == nil {
				// Give the poller one more round to pick up the last lines.
				drain(t, w, 2*time.Second)
				_ = t.Stop()
				return nil
			}
		}
	}
}

func drain(t *tail.Tail, w io.Writer, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-t.Lines:
			if !ok || line == nil || line.Err != nil {
				return
			}
			fmt.Fprintln(w, line.Text)
		case <-timer.C:
			return
		}
	}
}
