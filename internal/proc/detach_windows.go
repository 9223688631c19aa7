//go:build windows

package proc

import "syscall"

func detachSysProcAttr() *syscall.SysProcAttr {
	return nil
}
