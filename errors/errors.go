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

// Package errors holds the sentinel errors shared across the session-map
// core and its object-store adapter. Call sites wrap these with
// github.com/cubefs/cubefs/blobstore/util/errors.Info when they need to
// attach context, and unwrap with errors.Detail when reporting.
package errors

import "errors"

var (
	// ErrMalformedInput is returned by the codec when a key, value, or
	// legacy blob cannot be decoded. Fatal on load; never surfaced to
	// session-map callers.
	ErrMalformedInput = errors.New("sessionmap: malformed input")

	// ErrSessionExists is a precondition violation: add_session called
	// with a name already present in the map.
	ErrSessionExists = errors.New("sessionmap: session already exists")

	// ErrSessionNotFound names the condition of a lookup against a name
	// with no live session; SessionMap.Get reports a miss through its
	// boolean result rather than returning this error.
	ErrSessionNotFound = errors.New("sessionmap: session not found")

	// ErrDetached is a precondition violation: an operation that
	// requires a session to be linked into by_state was called on one
	// that isn't (e.g. touch_session after remove_session).
	ErrDetached = errors.New("sessionmap: session is not linked into the map")

	// ErrRecallLimit is a precondition violation: notify_recall_sent
	// called with new_limit >= the session's current cap count.
	ErrRecallLimit = errors.New("sessionmap: recall limit not below current cap count")

	// ErrObjectIO names a failure reading or mutating the backing object;
	// fatal to the rank at the session-map layer. The object-store adapter
	// in internal/objstore passes engine errors through unchanged rather
	// than wrapping them in this value.
	ErrObjectIO = errors.New("sessionmap: object store I/O error")
)
