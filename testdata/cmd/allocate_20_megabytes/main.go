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

// allocate_20_megabytes touches 20MiB of anonymous memory, exercising
// the memory cgroup limit: a run capped below ~20MiB should be OOM
// killed before reaching the final print.
package main

import "fmt"

const twentyMebibytes = 20 * 1024 * 1024

func main() {
	buf := make([]byte, twentyMebibytes)
	for i := range buf {
		buf[i] = byte(i)
	}
	fmt.Println(len(buf))
}
