// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse adapts gpumem.Manager onto github.com/hanwen/go-fuse/v2,
// exposing each allocation as a regular file directly under the mount
// root. The adapter itself holds no allocation state: every node call
// is translated into a Manager method call keyed by path, and every
// Manager error Kind is translated to a syscall.Errno at the boundary.
package fuse
