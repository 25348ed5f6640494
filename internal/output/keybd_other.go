//go:build !linux

package output

import "errors"

func sendCtrlV() error {
	return errors.New("keybd paste is only supported on linux")
}
