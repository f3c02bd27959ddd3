//go:build linux
// +build linux

// Copyright 2021 Intel Corporation. All Rights Reserved.
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

package nmt

import "golang.org/x/sys/unix"

// pageSize returns the OS page size, the Go equivalent of HotSpot's
// os::vm_page_size() that original_source/.../nmt/contiguousAllocator.hpp
// aligns its arena chunks to.
func pageSize() int {
	return unix.Getpagesize()
}
