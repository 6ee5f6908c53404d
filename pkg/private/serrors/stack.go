// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors

import (
	"fmt"
	"runtime"

	"go.uber.org/zap/zapcore"
)

const maxDepth = 32

// stack is the program counters of the goroutine that created the error.
type stack []uintptr

// callers skips runtime.Callers, callers, mkErrorInfo and the exported
// constructor.
func callers() stack {
	var pcs [maxDepth]uintptr
	n := runtime.Callers(4, pcs[:])
	return stack(pcs[:n])
}

func (s stack) frames() []string {
	if len(s) == 0 {
		return nil
	}
	var out []string
	frames := runtime.CallersFrames(s)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (s stack) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, f := range s.frames() {
		enc.AppendString(f)
	}
	return nil
}
