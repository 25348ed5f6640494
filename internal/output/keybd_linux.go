//go:build linux

package output

import (
	"fmt"
	"sync"

	"github.com/micmonay/keybd_event"
)

var (
	keyBondingMu    sync.Mutex
	keyBonding      keybd_event.KeyBonding
	keyBondingReady bool
)

// sendCtrlV emits Ctrl+V through a uinput virtual keyboard. The device is
// created once; a failed creation is retried on the next paste.
func sendCtrlV() error {
	keyBondingMu.Lock()
	defer keyBondingMu.Unlock()

	if !keyBondingReady {
		kb, err := keybd_event.NewKeyBonding()
		if err != nil {
			return fmt.Errorf("open virtual keyboard: %w", err)
		}
		keyBonding = kb
		keyBondingReady = true
	}

	keyBonding.SetKeys(keybd_event.VK_V)
	keyBonding.HasCTRL(true)
	return keyBonding.Launching()
}
