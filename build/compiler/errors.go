// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compiler

import (
	"github.com/pkg/errors"
)

// The compiler reports every failure as one of these kinds, wrapped with
// the offending expression. Classify with errors.Is.
var (
	// ErrUnsupported marks a construct the bytecode has no lowering for:
	// match, a global in value position, a non-primitive function
	// surviving lambda lifting, or a non-flat type at a kernel boundary.
	ErrUnsupported = errors.New("unsupported construct")

	// ErrUnboundVar marks a variable reference with no binding, which
	// normalization should have made impossible.
	ErrUnboundVar = errors.New("unbound variable")

	// ErrMissingConstant marks a constant or tensor shape absent from
	// the pre-built pool.
	ErrMissingConstant = errors.New("constant is not in the pool")

	// ErrMissingGlobal marks a global reference with no index.
	ErrMissingGlobal = errors.New("global is not in the module map")

	// ErrLowering marks a kernel engine or backend builder failure.
	ErrLowering = errors.New("kernel lowering failed")

	// ErrBadOpcode marks an emitted opcode outside the allowed space.
	ErrBadOpcode = errors.New("invalid opcode")
)
