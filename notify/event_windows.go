//go:build windows

// File: notify/event_windows.go
// Real Windows manual-reset event backing notify.Controller, using the
// same golang.org/x/sys/windows dependency umem uses for VirtualLock.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package notify

import (
	"time"

	"golang.org/x/sys/windows"
)

type winEvent struct {
	h windows.Handle
}

func newOSEvent() osEvent {
	h, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		panic(err)
	}
	return &winEvent{h: h}
}

func (e *winEvent) Set()   { _ = windows.SetEvent(e.h) }
func (e *winEvent) Reset() { _ = windows.ResetEvent(e.h) }

func (e *winEvent) Wait(timeout time.Duration) bool {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout.Milliseconds())
	}
	rv, err := windows.WaitForSingleObject(e.h, ms)
	return err == nil && rv == windows.WAIT_OBJECT_0
}

func (e *winEvent) Close() { _ = windows.CloseHandle(e.h) }
