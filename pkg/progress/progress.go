/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package progress implements a filesystem-based heartbeat: a Writer that
// an external watchdog polls to tell "long poll loop still legitimately
// waiting on pod delivery" apart from "process hung". Implements
// manager.HeartbeatReporter.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer reports liveness by atomically replacing a file with the current
// timestamp. Safe for concurrent use.
type Writer struct {
	filename string
	mu       sync.Mutex
}

// NewWriter creates a Writer that reports to filename, creating its parent
// directory if needed.
func NewWriter(filename string) (*Writer, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory %s: %w", dir, err)
	}
	return &Writer{filename: filename}, nil
}

// ReportProgress writes the current Unix timestamp to the progress file via
// a temp-file-then-rename swap, so a watchdog reading the file never
// observes a partial write.
func (w *Writer) ReportProgress() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tempFile := fmt.Sprintf("%s-%s.tmp", w.filename, uuid.New().String())
	timestamp := float64(time.Now().UnixNano()) / 1e9
	content := strconv.FormatFloat(timestamp, 'f', 6, 64)

	if err := os.WriteFile(tempFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write progress to temp file %s: %w", tempFile, err)
	}
	if err := os.Rename(tempFile, w.filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file %s to %s: %w", tempFile, w.filename, err)
	}
	return nil
}
