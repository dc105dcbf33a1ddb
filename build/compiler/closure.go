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
	"github.com/gx-org/tensorvm/build/ir"
)

// IsClosure returns true if fn has the shape lambda lifting gives to
// functions with captured variables: the body is itself a function. The
// outer parameters are the captured variables, the inner parameters the
// call arguments.
func IsClosure(fn *ir.Function) bool {
	_, ok := fn.Body.(*ir.Function)
	return ok
}
