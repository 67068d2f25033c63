//go:build !((darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64)))

package db

import (
	"database/sql"
	"runtime"
	"sync"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// DriverName is the database/sql driver the function is installed on.
const DriverName = "sqlite3"

// sharedCache is unset: every connection gets its own cache.
const sharedCache = false

var installOnce sync.Once

// install registers an auto extension that creates the function on every
// new connection, each with its own cache, while a binding is active.
//
// SQLite offers no hook when a connection closes, so a cache is released
// once its connection has been closed and collected. Pools that churn
// connections should bound them with sql.DB.SetMaxOpenConns and
// SetMaxIdleConns.
func install(*Binding) error {
	installOnce.Do(func() {
		sqlite3.AutoExtension(func(c *sqlite3.Conn) error {
			b := active.Load()
			if b == nil {
				return nil
			}
			p, err := b.newPredicate()
			if err != nil {
				return err
			}
			runtime.AddCleanup(c, b.release, p)
			return c.CreateFunction(FunctionName, 2, sqlite3.DETERMINISTIC, func(ctx sqlite3.Context, args ...sqlite3.Value) {
				ok, err := evaluate(p, textValue(args[0]), textValue(args[1]))
				if err != nil {
					ctx.ResultError(err)
					return
				}
				if ok {
					ctx.ResultInt(1)
					return
				}
				ctx.ResultInt(0)
			})
		})
	})
	return nil
}

func textValue(v sqlite3.Value) sql.NullString {
	if v.Type() == sqlite3.NULL {
		return sql.NullString{}
	}
	return sql.NullString{String: v.Text(), Valid: true}
}
