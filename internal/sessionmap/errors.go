// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package sessionmap

import apierrors "github.com/cubefs/mds-sessionmap/errors"

// Re-exported for call sites within this package; kept as package-level
// vars (not aliases at use-site) so error comparisons via errors.Is work
// against the single sentinel declared in the errors package.
var (
	ErrMalformedInput  = apierrors.ErrMalformedInput
	ErrSessionExists   = apierrors.ErrSessionExists
	ErrSessionNotFound = apierrors.ErrSessionNotFound
	ErrDetached        = apierrors.ErrDetached
	ErrRecallLimit     = apierrors.ErrRecallLimit
	ErrObjectIO        = apierrors.ErrObjectIO
)
