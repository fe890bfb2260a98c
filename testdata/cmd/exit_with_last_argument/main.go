// Copyright 2024 The Judgebox Authors.
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

// exit_with_last_argument exits with the integer value of its last
// argument, exercising exit-code propagation through the pipeline.
package main

import (
	"os"
	"strconv"
)

func main() {
	if len(os.Args) < 2 {
		os.Exit(0)
	}
	code, err := strconv.Atoi(os.Args[len(os.Args)-1])
	if err != nil {
		os.Exit(255)
	}
	os.Exit(code)
}
