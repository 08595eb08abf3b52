/*
 * Copyright 2025 Syncplane Authors
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
 */

package types

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ErrorKind classifies where in the sync pipeline an error originated and
// thereby how far it propagates. Schema, transport and destination errors are
// fatal; the rest are collected per (table, client) without aborting siblings.
type ErrorKind string

const (
	KindSchema      ErrorKind = "schema"
	KindMultiplex   ErrorKind = "multiplex"
	KindResolver    ErrorKind = "resolver"
	KindEncoding    ErrorKind = "encoding"
	KindDecoding    ErrorKind = "decoding"
	KindTransport   ErrorKind = "transport"
	KindDestination ErrorKind = "destination"
)

// Fatal reports whether an error of this kind aborts the whole sync rather
// than being scoped to one table/client.
func (k ErrorKind) Fatal() bool {
	return k == KindSchema || k == KindTransport || k == KindDestination
}

type SyncError struct {
	Kind   ErrorKind `json:"kind"`
	Table  string    `json:"table,omitempty"`
	Client string    `json:"client,omitempty"`
	Err    error     `json:"-"`
}

func (e *SyncError) Error() string {
	switch {
	case e.Table != "" && e.Client != "":
		return fmt.Sprintf("%s error in table[%s] client[%s]: %s", e.Kind, e.Table, e.Client, e.Err)
	case e.Table != "":
		return fmt.Sprintf("%s error in table[%s]: %s", e.Kind, e.Table, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
	}
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSchemaError reports a malformed or cyclic table definition.
func NewSchemaError(format string, args ...any) *SyncError {
	return &SyncError{Kind: KindSchema, Err: fmt.Errorf(format, args...)}
}

func NewMultiplexError(table string, err error) *SyncError {
	return &SyncError{Kind: KindMultiplex, Table: table, Err: err}
}

func NewResolverError(table, client string, err error) *SyncError {
	return &SyncError{Kind: KindResolver, Table: table, Client: client, Err: err}
}

func NewEncodingError(table string, err error) *SyncError {
	return &SyncError{Kind: KindEncoding, Table: table, Err: err}
}

func NewDecodingError(err error) *SyncError {
	return &SyncError{Kind: KindDecoding, Err: err}
}

func NewTransportError(err error) *SyncError {
	return &SyncError{Kind: KindTransport, Err: err}
}

func NewDestinationError(table string, err error) *SyncError {
	return &SyncError{Kind: KindDestination, Table: table, Err: err}
}

// AsSyncError extracts a *SyncError from an error chain, wrapping unknown
// errors with the given fallback kind.
func AsSyncError(err error, fallback ErrorKind) *SyncError {
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return &SyncError{Kind: fallback, Err: err}
}

// SyncSummary accumulates per-table results for one end-to-end sync run.
// Safe for concurrent use by fetch tasks.
type SyncSummary struct {
	mu        sync.Mutex
	Resources map[string]int64 // rows delivered per table
	Tasks     map[string]int64 // fetch tasks scheduled per table
	Batches   int64
	Errors    []*SyncError
}

func NewSyncSummary() *SyncSummary {
	return &SyncSummary{
		Resources: make(map[string]int64),
		Tasks:     make(map[string]int64),
	}
}

func (s *SyncSummary) AddTask(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tasks[table]++
}

func (s *SyncSummary) AddResources(table string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resources[table] += count
}

func (s *SyncSummary) AddBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches++
}

func (s *SyncSummary) Collect(err *SyncError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, err)
}

// HasErrorFor reports whether a non-fatal error was collected for the given
// table (any client).
func (s *SyncSummary) HasErrorFor(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.Errors {
		if e.Table == table {
			return true
		}
	}
	return false
}

func (s *SyncSummary) TotalResources() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, count := range s.Resources {
		total += count
	}
	return total
}

// Err aggregates all collected errors, nil when the sync fully succeeded.
func (s *SyncSummary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var multErr error
	for _, e := range s.Errors {
		multErr = multierror.Append(multErr, e)
	}
	return multErr
}

// Partial reports whether the sync finished with collected table-level errors.
func (s *SyncSummary) Partial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors) > 0
}
