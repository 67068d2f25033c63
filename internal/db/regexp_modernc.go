//go:build (darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64))

package db

import (
	"database/sql/driver"
	"sync"

	"modernc.org/sqlite"
)

// DriverName is the database/sql driver the function is installed on.
const DriverName = "sqlite"

// sharedCache is set because modernc.org/sqlite registers functions for
// every connection of the process: one cache behind a lock serves them all.
const sharedCache = true

var (
	installOnce sync.Once
	installErr  error
)

// install registers the function once. It dispatches to the active binding.
func install(*Binding) error {
	installOnce.Do(func() {
		installErr = sqlite.RegisterDeterministicScalarFunction(FunctionName, 2, regexpFunc)
	})
	return installErr
}

func regexpFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	b := active.Load()
	if b == nil || b.shared == nil {
		return nil, ErrNotRegistered
	}
	ok, err := evaluate(b.shared, textArg(args[0]), textArg(args[1]))
	if err != nil {
		return nil, err
	}
	if ok {
		return int64(1), nil
	}
	return int64(0), nil
}
