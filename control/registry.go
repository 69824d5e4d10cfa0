// control/registry.go
// Author: momentics <momentics@gmail.com>
//
// Typed registry of the process-wide XSK controls spec.md §6 names:
// XskDisableTxBounce and XskRxZeroCopy. Values load from file/env via
// viper and changes propagate to registered hot-reload listeners.

package control

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Registry keys for the two persistent controls spec.md §6 defines.
const (
	KeyDisableTxBounce = "xsk.disable_tx_bounce"
	KeyRxZeroCopy      = "xsk.rx_zero_copy"
)

// Registry is a thread-safe snapshot of the XSK registry controls,
// generalized from the teacher's ConfigStore (a plain key/value bag)
// to the two typed booleans this domain actually has.
type Registry struct {
	mu        sync.RWMutex
	disableTx bool
	rxZeroCp  bool
	listeners []func(RegistrySnapshot)
	v         *viper.Viper
}

// RegistrySnapshot is a copyable point-in-time read of both controls.
type RegistrySnapshot struct {
	DisableTxBounce bool
	RxZeroCopy      bool
}

// NewRegistry builds a registry with both controls off, the defaults
// spec.md implies ("bounce enabled, zero-copy disabled unless opted
// into").
func NewRegistry() *Registry {
	v := viper.New()
	v.SetDefault(KeyDisableTxBounce, false)
	v.SetDefault(KeyRxZeroCopy, false)
	return &Registry{v: v}
}

// LoadFile reads registry controls from a config file (any format
// viper supports: yaml, json, toml, ...) and applies them.
func (r *Registry) LoadFile(path string) error {
	r.v.SetConfigFile(path)
	if err := r.v.ReadInConfig(); err != nil {
		return err
	}
	r.apply()
	return nil
}

// BindEnv exposes both controls as environment-variable overrides
// (XSK_DISABLE_TX_BOUNCE, XSK_RX_ZERO_COPY), then applies current
// values.
func (r *Registry) BindEnv() {
	r.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	r.v.AutomaticEnv()
	r.apply()
}

func (r *Registry) apply() {
	r.mu.Lock()
	r.disableTx = r.v.GetBool(KeyDisableTxBounce)
	r.rxZeroCp = r.v.GetBool(KeyRxZeroCopy)
	listeners := append([]func(RegistrySnapshot){}, r.listeners...)
	r.mu.Unlock()

	snapshot := r.GetSnapshot()
	for _, fn := range listeners {
		go fn(snapshot)
	}
}

// DisableTxBounce reports the current XskDisableTxBounce control.
func (r *Registry) DisableTxBounce() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disableTx
}

// RxZeroCopy reports the current XskRxZeroCopy control.
func (r *Registry) RxZeroCopy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rxZeroCp
}

// SetDisableTxBounce updates the control and dispatches reload.
func (r *Registry) SetDisableTxBounce(v bool) {
	r.mu.Lock()
	r.disableTx = v
	listeners := append([]func(RegistrySnapshot){}, r.listeners...)
	r.mu.Unlock()
	snapshot := r.GetSnapshot()
	for _, fn := range listeners {
		go fn(snapshot)
	}
}

// SetRxZeroCopy updates the control and dispatches reload.
func (r *Registry) SetRxZeroCopy(v bool) {
	r.mu.Lock()
	r.rxZeroCp = v
	listeners := append([]func(RegistrySnapshot){}, r.listeners...)
	r.mu.Unlock()
	snapshot := r.GetSnapshot()
	for _, fn := range listeners {
		go fn(snapshot)
	}
}

// GetSnapshot returns a copy of both controls, for GET_SOCKOPT-shaped
// read paths.
func (r *Registry) GetSnapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistrySnapshot{DisableTxBounce: r.disableTx, RxZeroCopy: r.rxZeroCp}
}

// OnReload registers a listener invoked (on its own goroutine) after
// either control changes.
func (r *Registry) OnReload(fn func(RegistrySnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
