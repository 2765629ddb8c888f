/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# mds-sessionmap: a single-rank client session table for a metadata server

## What this is

A versioned, in-memory index over the client sessions a metadata server
rank is currently handling, durably backed by one object in a shared
object store. Four monotonic counters (version, projected, committing,
committed) track what has been changed and what has been saved: projecting
a change, marking a session dirty, replaying requests against it, or
wiping the map advances them, while a bare state change or capability
renewal does not. Callers can ask "has at least version N been durably
committed yet" without blocking on every single save.

## Data Model

* EntityName/EntityInst — the stable identity of a client connection.
* SessionInfo — the durable, per-client state: client address,
  completed-request de-dup window, inode preallocation and use
  bookkeeping, client metadata. The capability renewal time lives on
  Session, in memory only.
* Session — SessionInfo plus the in-memory-only state machine (closed,
  opening, open, closing, stale, killing) and its by_state linkage.
* SessionMap — the live table: sessions by name, a secondary index by
  state, dirty/tombstone overlays staged for the next save, and the
  version lineage.

## Architecture

A rank owns exactly one SessionMap and one backing object. Load and save
are the only suspension points; everything else is a direct, synchronous
mutation against the in-memory table. The object-store protocol
(header/OMAP read and write, ranged paging, whole-object fallback for the
legacy on-disk format) is modeled as an Objecter, with completions
delivered through a Finisher the way a real object-store client delivers
them off the caller's own goroutine.

## Building Blocks

* RocksDB, via the project's own kvstore package, standing in for the OSD.
* Prometheus, for save/load latency and version-lineage observability.
* The blobstore util/log, common/trace, common/config, common/rpc, and
  common/profile packages, for daemon logging, per-operation tracing,
  configuration, and the HTTP debug surface.

*/

package sessionmapd
