// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-goroutine, poll-mode event loop that
// drives ring streams: epoll on Linux, kqueue on FreeBSD.
//
// A Loop runs cooperative tasks. A task's Poll either finishes or returns
// after arming one-shot interest on a descriptor (NeedRead / NeedWrite) with
// its Waker; the loop polls it again once the descriptor signals. Wakeups
// may be spurious and tasks must re-check their condition.
package reactor
