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

package utils

import (
	"math/rand"
	"os"
	"path"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
)

// IsValidSubcommand reports whether name is one of the registered commands.
func IsValidSubcommand(commands []*cobra.Command, name string) bool {
	_, found := ArrayContains(commands, func(cmd *cobra.Command) bool {
		return cmd.Name() == name
	})
	return found
}

// Ternary is a helper to pick one of two values based on a condition.
func Ternary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

func ForEach[T any](items []T, fn func(item T) error) error {
	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// ArrayContains returns the index of the first element matching the predicate,
// or -1 and false.
func ArrayContains[T any](items []T, match func(elem T) bool) (int, bool) {
	for i, item := range items {
		if match(item) {
			return i, true
		}
	}
	return -1, false
}

func ULID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// MatchesAny reports whether the name matches at least one of the glob
// patterns; an empty pattern list selects everything.
func MatchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

func UnmarshalFile(filePath string, dest any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func WriteFile(filePath string, content any) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0o644)
}
