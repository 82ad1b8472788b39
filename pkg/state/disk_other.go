//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package state

import "errors"

func DiskSpace(path string) (Space, error) {
	return Space{}, errors.ErrUnsupported
}
