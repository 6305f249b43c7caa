/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tools

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var inlinePattern = regexp.MustCompile(`%inline *\("([^"]*)"\)`)

// MaxInlineDepth bounds nested inlining.
var MaxInlineDepth = 8

// Verbose enables debug logging in this package.
var Verbose = false

// Inline replaces '%inline("NAME")' with f(NAME).
//
// Replacements are inlined too, up to MaxInlineDepth levels, and a
// name that includes itself is an error.
func Inline(bs []byte, f func(string) ([]byte, error)) ([]byte, error) {
	return inline(bs, f, nil)
}

func inline(bs []byte, f func(string) ([]byte, error), stack []string) ([]byte, error) {
	if MaxInlineDepth < len(stack) {
		return nil, fmt.Errorf("inlining too deep: %s", strings.Join(stack, " > "))
	}
	acc := make([]byte, 0, len(bs))
	i := 0
	for _, loc := range inlinePattern.FindAllSubmatchIndex(bs, -1) {
		acc = append(acc, bs[i:loc[0]]...)
		i = loc[1]
		name := string(bs[loc[2]:loc[3]])
		for _, s := range stack {
			if s == name {
				return nil, fmt.Errorf("%s inlines itself", name)
			}
		}
		replacement, err := f(name)
		if err != nil {
			return nil, err
		}
		if replacement, err = inline(replacement, f, append(stack, name)); err != nil {
			return nil, err
		}
		if Verbose {
			log.Printf("debug inlining %s: %d bytes", name, len(replacement))
		}
		acc = append(acc, replacement...)
	}
	return append(acc, bs[i:]...), nil
}

// DirInliner reads names relative to dir.
func DirInliner(dir string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name))
	}
}

// ReadFileWithInlines is a replacement for os.ReadFile that adds
// automatic Inline()ing based on the directory obtained from the
// filename.
//
// '%inline("NAME")' is replaced with ReadFile(NAME).
func ReadFileWithInlines(filename string) ([]byte, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Inline(bs, DirInliner(filepath.Dir(filename)))
}

// ReadAllWithInlines is a replacement for io.ReadAll that adds
// automatic Inline()ing based on the given directory.
func ReadAllWithInlines(in io.Reader, dir string) ([]byte, error) {
	bs, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return Inline(bs, DirInliner(dir))
}
