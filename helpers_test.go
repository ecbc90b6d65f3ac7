// helpers_test.go - helper routines for tests
//
// (c) Sudhi Herle 2024
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package bhstore

import (
	"fmt"
	"runtime"
	"testing"
)

func newAsserter(t *testing.T) func(cond bool, msg string, args ...interface{}) {
	return func(cond bool, msg string, args ...interface{}) {
		if cond {
			return
		}

		_, file, line, ok := runtime.Caller(1)
		if !ok {
			file = "???"
			line = 0
		}

		s := fmt.Sprintf(msg, args...)
		t.Fatalf("%s: %d: Assertion failed: %s\n", file, line, s)
	}
}

// newTestStore builds a store rooted in the test's temp dir and closes
// it when the test ends.
func newTestStore(t *testing.T, cfg *Config) *Store {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Dir == "" {
		c.Dir = t.TempDir()
	}

	st, err := New(&c)
	if err != nil {
		t.Fatalf("can't create store: %s", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// numKeys generates n distinct keys "0".."n-1"
func numKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%d", i))
	}
	return keys
}

var keyw = []string{
	"abalone",
	"curmudgeonly",
	"thermocline",
	"sandpiper's",
	"quixotic",
	"vermilion",
	"octothorpe",
	"granularity",
	"Pennington",
	"marzipan",
	"ultracrepidarian",
	"selvage",
	"jackdaws",
	"persnickety",
	"Worcestershire",
	"bandolier",
	"mellifluous",
	"torpor",
	"skeuomorph",
	"haberdashery",
}
